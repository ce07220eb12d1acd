// Package framedir serves pre-extracted video frames stored as one file per
// frame under <root>/<modality>/<video>/. Frames are returned as opaque
// bytes; decoding and crop augmentation belong to the consumer.
package framedir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultExtension is the frame file extension used when none is configured.
const DefaultExtension = ".jpg"

// Reader loads clip windows from a frame directory tree. It satisfies the
// dataset.FrameReader contract: negative frame indices and indices past the
// end of the video are served by clamping to the first/last stored frame.
type Reader struct {
	root     string
	modality string
	ext      string

	// Crop parameters are carried for consumers that decode the returned
	// bytes; the reader itself never touches pixels.
	cropDim           int
	sameCropTransform bool

	mu          sync.Mutex
	frameCounts map[string]int
}

// Option configures a Reader.
type Option func(*Reader)

// WithExtension sets the frame file extension (including the dot).
func WithExtension(ext string) Option {
	return func(r *Reader) { r.ext = ext }
}

// WithCrop records the crop size and whether one crop transform applies to
// the whole clip.
func WithCrop(dim int, sameTransform bool) Option {
	return func(r *Reader) {
		r.cropDim = dim
		r.sameCropTransform = sameTransform
	}
}

// NewReader creates a Reader over root for one modality (rgb, bw, flow).
func NewReader(root, modality string, opts ...Option) *Reader {
	r := &Reader{
		root:        root,
		modality:    modality,
		ext:         DefaultExtension,
		frameCounts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CropDim returns the configured crop size (0 = no crop).
func (r *Reader) CropDim() int { return r.cropDim }

// SameCropTransform reports whether one crop transform applies per clip.
func (r *Reader) SameCropTransform() bool { return r.sameCropTransform }

// LoadFrames reads the window [startFrame, endFrame) with the given stride.
// Indices outside the stored range are clamped to the first/last frame;
// when padEndFrame is false the window is truncated at the last stored
// frame instead of padded. A missing or empty video directory is an
// unloadable window and is reported as an error for the caller to resample.
// randomSample is accepted for contract compatibility; per-frame pixel
// augmentation happens after decode, outside this package.
func (r *Reader) LoadFrames(clipName string, startFrame, endFrame int, padEndFrame bool, frameSampleStride int, randomSample bool) ([][]byte, error) {
	if frameSampleStride <= 0 {
		return nil, fmt.Errorf("framedir: stride must be positive, got %d", frameSampleStride)
	}

	n, err := r.numFrames(clipName)
	if err != nil {
		return nil, err
	}

	dir := r.videoDir(clipName)
	var frames [][]byte
	for f := startFrame; f < endFrame; f += frameSampleStride {
		idx := f
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			if !padEndFrame {
				break
			}
			idx = n - 1
		}

		data, err := os.ReadFile(filepath.Join(dir, r.frameFile(idx)))
		if err != nil {
			return nil, fmt.Errorf("framedir: read %s frame %d: %w", clipName, idx, err)
		}
		frames = append(frames, data)
	}
	return frames, nil
}

// NumFrames returns the number of stored frames for a video.
func (r *Reader) NumFrames(clipName string) (int, error) {
	return r.numFrames(clipName)
}

func (r *Reader) videoDir(clipName string) string {
	return filepath.Join(r.root, r.modality, clipName)
}

func (r *Reader) frameFile(idx int) string {
	return fmt.Sprintf("%06d%s", idx, r.ext)
}

// validClipName rejects names that could escape the frame root. Clip names
// come from annotation files, which are data, not trusted input.
func validClipName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("framedir: invalid clip name %q", name)
	}
	return nil
}

// numFrames counts the stored frame files for a video, caching the result.
// Frame directories are immutable once extracted, so the cache never needs
// invalidation within a run.
func (r *Reader) numFrames(clipName string) (int, error) {
	if err := validClipName(clipName); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if n, ok := r.frameCounts[clipName]; ok {
		return n, nil
	}

	entries, err := os.ReadDir(r.videoDir(clipName))
	if err != nil {
		return 0, fmt.Errorf("framedir: video %s: %w", clipName, err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), r.ext) {
			n++
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("framedir: video %s has no %s frames", clipName, r.ext)
	}
	r.frameCounts[clipName] = n
	return n, nil
}
