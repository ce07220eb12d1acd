// Package dataset turns stored frame sequences and sparse temporal event
// annotations into fixed-length training clips for action spotting.
//
// Sampling is stochastic and with replacement: one logical epoch is
// DatasetLen independent draws, not an enumeration of the annotation set.
// Videos are drawn with probability proportional to their frame count, and
// re-sampling the same video yields a different start offset each time
// (frame-shift augmentation). When event-centred sampling is enabled, the
// sampled window is guaranteed to contain the chosen event frame.
package dataset

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/banshee-data/clipset/internal/annotation"
)

// FrameReader loads pixel data for a clip window. Implementations must
// accept negative startFrame values and endFrame values past the end of the
// video (out-of-range padding), and must honour stride subsampling.
// An unrecoverable window (missing or corrupt source media) is signalled by
// a nil frame slice or an error; the sampler resamples rather than
// propagating either.
type FrameReader interface {
	LoadFrames(clipName string, startFrame, endFrame int, padEndFrame bool, frameSampleStride int, randomSample bool) ([][]byte, error)
}

// Example is one sampled training clip. Frames holds one entry per clip
// position as returned by the frame reader; Labels holds the per-position
// class index (0 = background); ContainsEvent is 1 iff any label is
// non-background. Video and StartFrame identify the sampled window for
// diagnostics.
type Example struct {
	Frames        [][]byte
	Labels        []int
	ContainsEvent int
	Video         string
	StartFrame    int
}

// errUnloadable marks a window the frame reader could not serve. It never
// escapes GetExample.
var errUnloadable = errors.New("unloadable clip window")

type flatEvent struct {
	videoIdx int
	frame    int
}

// ActionSpotDataset samples fixed-length clips from an annotated video set.
// All index structures are built at construction and read-only afterwards,
// so one instance is safe for concurrent reads but each concurrent sampler
// should own its instance (the RNG is not synchronised).
type ActionSpotDataset struct {
	cfg     Config
	videos  []annotation.Video
	classes *annotation.ClassMap
	reader  FrameReader
	rng     *rand.Rand

	// cumWeights[i] is the cumulative length-proportional probability of
	// videos[0..i]; the final entry is 1.
	cumWeights []float64
	// flatEvents is built only when event-centred sampling is enabled, and
	// holds one entry per event whose frame lies inside its video.
	flatEvents []flatEvent
}

// New builds a sampler over videos. rng may be nil, in which case a
// time-seeded generator is used; tests pass a fixed-seed generator to pin
// exact draws. Workers that fork must construct their own instance with an
// independently seeded rng.
func New(cfg Config, videos []annotation.Video, classes *annotation.ClassMap, reader FrameReader, rng *rand.Rand) (*ActionSpotDataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if classes == nil {
		return nil, fmt.Errorf("dataset: nil class map")
	}
	if reader == nil {
		return nil, fmt.Errorf("dataset: nil frame reader")
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("dataset: empty annotation set")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	d := &ActionSpotDataset{
		cfg:     cfg,
		videos:  videos,
		classes: classes,
		reader:  reader,
		rng:     rng,
	}

	var total float64
	for _, v := range videos {
		total += float64(v.NumFrames)
	}
	if total == 0 {
		return nil, fmt.Errorf("dataset: annotation set has no frames")
	}
	d.cumWeights = make([]float64, len(videos))
	var running float64
	for i, v := range videos {
		running += float64(v.NumFrames) / total
		d.cumWeights[i] = running
	}
	d.cumWeights[len(videos)-1] = 1

	if cfg.EventSampleRate > 0 {
		for i, v := range videos {
			for _, e := range v.Events {
				if e.Frame < v.NumFrames {
					d.flatEvents = append(d.flatEvents, flatEvent{videoIdx: i, frame: e.Frame})
				}
			}
		}
		if len(d.flatEvents) == 0 {
			return nil, fmt.Errorf("dataset: event sampling enabled but annotation set has no in-range events")
		}
	}

	return d, nil
}

// Len reports the logical epoch size.
func (d *ActionSpotDataset) Len() int {
	return d.cfg.DatasetLen
}

// NumClasses returns the size of the class map.
func (d *ActionSpotDataset) NumClasses() int {
	return d.classes.Len()
}

// VideoNames returns the annotated video names in index order.
func (d *ActionSpotDataset) VideoNames() []string {
	names := make([]string, len(d.videos))
	for i, v := range d.videos {
		names[i] = v.Name
	}
	return names
}

// VideoWeights returns the per-video selection probability used by uniform
// clip sampling (proportional to frame count).
func (d *ActionSpotDataset) VideoWeights() []float64 {
	w := make([]float64, len(d.cumWeights))
	prev := 0.0
	for i, c := range d.cumWeights {
		w[i] = c - prev
		prev = c
	}
	return w
}

// weightedVideoIndex draws a video with probability proportional to its
// frame count.
func (d *ActionSpotDataset) weightedVideoIndex() int {
	r := d.rng.Float64()
	idx := sort.SearchFloat64s(d.cumWeights, r)
	if idx >= len(d.cumWeights) {
		idx = len(d.cumWeights) - 1
	}
	return idx
}

// sampleClip picks a video by length-weighted draw and a shifted start
// frame. The start may be negative or run past the end of the video; the
// frame reader's padding contract covers the overhang.
func (d *ActionSpotDataset) sampleClip() (videoIdx, startFrame int) {
	videoIdx = d.weightedVideoIndex()
	n := d.videos[videoIdx].NumFrames
	stride := d.cfg.FrameSampleStride

	span := n - 1 + (2*d.cfg.NPadFrames-d.cfg.ClipLen)*stride
	if span < 0 {
		span = 0
	}
	startFrame = -d.cfg.NPadFrames*stride + d.rng.Intn(span+1)
	return videoIdx, startFrame
}

// sampleEvent picks a uniformly random annotated event and a start frame
// whose window is guaranteed to contain the event frame:
// start <= frame < start + ClipLen*stride.
func (d *ActionSpotDataset) sampleEvent() (videoIdx, startFrame int) {
	fe := d.flatEvents[d.rng.Intn(len(d.flatEvents))]
	n := d.videos[fe.videoIdx].NumFrames
	stride := d.cfg.FrameSampleStride

	lower := max(-d.cfg.NPadFrames*stride, fe.frame-d.cfg.ClipLen*stride+1)
	upper := min(n-1+(d.cfg.NPadFrames-d.cfg.ClipLen)*stride, fe.frame)

	startFrame = lower
	if upper > lower {
		startFrame = lower + d.rng.Intn(upper-lower+1)
	}
	return fe.videoIdx, startFrame
}

// sample picks a strategy and returns the (video, start frame) pair.
func (d *ActionSpotDataset) sample() (videoIdx, startFrame int) {
	// Events are sparse, so event-centred draws boost the share of positive
	// training windows. A higher EventSampleRate makes the event branch
	// LESS likely; the comparison direction is intentional, see config.go.
	if d.cfg.EventSampleRate > 0 && d.rng.Float64() > d.cfg.EventSampleRate {
		return d.sampleEvent()
	}
	return d.sampleClip()
}

// buildLabels constructs the per-position label vector for a window.
// Events are applied in annotation order with symmetric dilation; where
// dilation windows overlap, the last event written wins.
func (d *ActionSpotDataset) buildLabels(videoIdx, startFrame int) ([]int, error) {
	clip := d.cfg.ClipLen
	stride := d.cfg.FrameSampleStride
	dilate := d.cfg.DilateLen

	labels := make([]int, clip)
	for _, e := range d.videos[videoIdx].Events {
		idx := floorDiv(e.Frame-startFrame, stride)
		if idx < -dilate || idx >= clip+dilate {
			continue
		}
		class, err := d.classes.Index(e.Label)
		if err != nil {
			return nil, fmt.Errorf("video %q frame %d: %w", d.videos[videoIdx].Name, e.Frame, err)
		}
		for i := max(0, idx-dilate); i < min(clip, idx+dilate+1); i++ {
			labels[i] = class
		}
	}
	return labels, nil
}

// buildExample runs one full sampling pass: strategy, window, labels,
// frame load. A failed frame load returns errUnloadable.
func (d *ActionSpotDataset) buildExample() (*Example, error) {
	videoIdx, startFrame := d.sample()

	labels, err := d.buildLabels(videoIdx, startFrame)
	if err != nil {
		return nil, err
	}

	video := d.videos[videoIdx]
	stride := d.cfg.FrameSampleStride
	frames, err := d.reader.LoadFrames(
		video.Name,
		startFrame,
		startFrame+d.cfg.ClipLen*stride,
		true,
		stride,
		!d.cfg.IsEval,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errUnloadable, video.Name, err)
	}
	if frames == nil {
		return nil, fmt.Errorf("%w: %s", errUnloadable, video.Name)
	}

	containsEvent := 0
	for _, l := range labels {
		if l != 0 {
			containsEvent = 1
			break
		}
	}

	return &Example{
		Frames:        frames,
		Labels:        labels,
		ContainsEvent: containsEvent,
		Video:         video.Name,
		StartFrame:    startFrame,
	}, nil
}

// GetExample produces one Example. Windows the frame reader cannot serve
// are transparently resampled with a fresh draw; corrupt source media skews
// the sampling distribution slightly but never aborts a run. An unknown
// event label is a data-integrity bug and is returned as an error wrapping
// annotation.ErrUnknownLabel.
func (d *ActionSpotDataset) GetExample() (*Example, error) {
	limit := d.cfg.maxLoadRetries()
	for attempt := 0; attempt < limit; attempt++ {
		ex, err := d.buildExample()
		if errors.Is(err, errUnloadable) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return ex, nil
	}
	return nil, fmt.Errorf("dataset: no loadable clip window after %d attempts", limit)
}

// Get satisfies the indexable-collection contract used by batching layers.
// The index is ignored: every call is an independent random draw.
func (d *ActionSpotDataset) Get(_ int) (*Example, error) {
	return d.GetExample()
}

// floorDiv is integer division rounding toward negative infinity. Label
// indexing needs floor semantics because event frames can precede the
// window start.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
