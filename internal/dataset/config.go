package dataset

import "fmt"

// DefaultMaxLoadRetries bounds the resample-on-unloadable-window loop.
// The loop is conceptually unbounded (corrupt source media must never abort
// a training run); the ceiling only exists so a systemically broken frame
// store fails loudly instead of spinning forever.
const DefaultMaxLoadRetries = 10000

// ConfigError reports an invalid sampler configuration field. Construction
// fails fast on bad values; nothing is silently clamped.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("dataset config: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Config holds the sampling parameters for an ActionSpotDataset.
type Config struct {
	// ClipLen is the number of frames per sampled clip.
	ClipLen int
	// DatasetLen is the logical epoch size: the number of independent draws
	// reported per pass. It is decoupled from the number of annotated videos.
	DatasetLen int
	// Modality of the stored frames (rgb, bw, flow). Passed through to the
	// frame reader; the sampler itself does not interpret it.
	Modality string
	// IsEval disables random per-frame augmentation in the frame reader.
	IsEval bool
	// CropDim is the optional crop size requested from the frame reader
	// (0 = no crop).
	CropDim int
	// FrameSampleStride is the frame-index step between consecutive sampled
	// frames; >1 temporally downsamples the video.
	FrameSampleStride int
	// SameCropTransform applies one crop transform to every frame in a clip
	// rather than per-frame transforms.
	SameCropTransform bool
	// DilateLen widens each single-frame label into a symmetric window of
	// 2*DilateLen+1 positions.
	DilateLen int
	// Mixup is reserved for a batch-level augmentation handled by the
	// consumer; the sampler only carries the flag.
	Mixup bool
	// NPadFrames is the margin (in sampled frames) requested before and
	// after the nominal clip window for temporal-context augmentation.
	NPadFrames int
	// EventSampleRate enables event-centred sampling when > 0. Note the
	// branch condition is rng.Float64() > EventSampleRate, so a higher rate
	// makes event-centred draws LESS likely. Intentional; do not flip the
	// comparison without revisiting every training config that sets it.
	EventSampleRate float64
	// MaxLoadRetries overrides DefaultMaxLoadRetries when > 0.
	MaxLoadRetries int
}

// Validate checks the construction contract. Invalid values are rejected
// with a *ConfigError.
func (c *Config) Validate() error {
	if c.ClipLen <= 0 {
		return &ConfigError{Field: "clip_len", Value: c.ClipLen, Reason: "must be greater than 0"}
	}
	if c.FrameSampleStride <= 0 {
		return &ConfigError{Field: "frame_sample_stride", Value: c.FrameSampleStride, Reason: "must be greater than 0"}
	}
	if c.DatasetLen <= 0 {
		return &ConfigError{Field: "dataset_len", Value: c.DatasetLen, Reason: "must be greater than 0"}
	}
	if c.NPadFrames < 0 {
		return &ConfigError{Field: "n_pad_frames", Value: c.NPadFrames, Reason: "must be non-negative"}
	}
	return nil
}

func (c *Config) maxLoadRetries() int {
	if c.MaxLoadRetries > 0 {
		return c.MaxLoadRetries
	}
	return DefaultMaxLoadRetries
}
