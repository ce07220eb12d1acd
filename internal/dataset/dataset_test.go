package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/banshee-data/clipset/internal/annotation"
)

// stubReader serves synthetic clips and can simulate unloadable windows.
type stubReader struct {
	failFirst int // number of leading calls that fail
	failAll   bool
	calls     int

	lastName   string
	lastStart  int
	lastEnd    int
	lastPadEnd bool
	lastStride int
	lastRandom bool
}

func (r *stubReader) LoadFrames(name string, start, end int, padEnd bool, stride int, random bool) ([][]byte, error) {
	r.calls++
	r.lastName = name
	r.lastStart = start
	r.lastEnd = end
	r.lastPadEnd = padEnd
	r.lastStride = stride
	r.lastRandom = random

	if r.failAll || r.calls <= r.failFirst {
		return nil, nil
	}

	n := (end - start + stride - 1) / stride
	frames := make([][]byte, n)
	for i := range frames {
		frames[i] = []byte{byte(i)}
	}
	return frames, nil
}

func testClasses() *annotation.ClassMap {
	return annotation.NewClassMap([]string{"background", "goal", "card", "corner"})
}

func validConfig() Config {
	return Config{
		ClipLen:           10,
		DatasetLen:        5,
		Modality:          "rgb",
		FrameSampleStride: 1,
		NPadFrames:        0,
		EventSampleRate:   -1,
	}
}

func seededRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantErr bool
	}{
		{"valid", func(c *Config) {}, "", false},
		{"zero clip_len", func(c *Config) { c.ClipLen = 0 }, "clip_len", true},
		{"negative clip_len", func(c *Config) { c.ClipLen = -3 }, "clip_len", true},
		{"zero stride", func(c *Config) { c.FrameSampleStride = 0 }, "frame_sample_stride", true},
		{"zero dataset_len", func(c *Config) { c.DatasetLen = 0 }, "dataset_len", true},
		{"negative pad", func(c *Config) { c.NPadFrames = -1 }, "n_pad_frames", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, cerr.Field)
			}
		})
	}
}

func TestNewRejectsBadInputs(t *testing.T) {
	videos := []annotation.Video{{Name: "a", NumFrames: 100}}

	if _, err := New(validConfig(), videos, testClasses(), nil, nil); err == nil {
		t.Error("expected error for nil reader")
	}
	if _, err := New(validConfig(), nil, testClasses(), &stubReader{}, nil); err == nil {
		t.Error("expected error for empty annotation set")
	}
	zero := []annotation.Video{{Name: "a", NumFrames: 0}}
	if _, err := New(validConfig(), zero, testClasses(), &stubReader{}, nil); err == nil {
		t.Error("expected error for zero total frames")
	}

	cfg := validConfig()
	cfg.EventSampleRate = 0.5
	if _, err := New(cfg, videos, testClasses(), &stubReader{}, nil); err == nil {
		t.Error("expected error: event sampling enabled with no in-range events")
	}
}

func TestLenMatchesDatasetLen(t *testing.T) {
	videos := []annotation.Video{{Name: "a", NumFrames: 100}}
	d, err := New(validConfig(), videos, testClasses(), &stubReader{}, seededRNG(1))
	if err != nil {
		t.Fatal(err)
	}
	if d.Len() != 5 {
		t.Fatalf("expected Len 5, got %d", d.Len())
	}
	for i := 0; i < d.Len(); i++ {
		ex, err := d.Get(i)
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		if len(ex.Labels) != 10 {
			t.Fatalf("draw %d: expected 10 labels, got %d", i, len(ex.Labels))
		}
	}
}

func TestLabelsWithinClassRange(t *testing.T) {
	videos := []annotation.Video{
		{Name: "a", NumFrames: 200, Events: []annotation.Event{
			{Frame: 10, Label: "goal"},
			{Frame: 90, Label: "card"},
			{Frame: 150, Label: "corner"},
		}},
		{Name: "b", NumFrames: 80, Events: []annotation.Event{
			{Frame: 40, Label: "goal"},
		}},
	}

	cfg := validConfig()
	cfg.ClipLen = 25
	cfg.DatasetLen = 500
	cfg.FrameSampleStride = 2
	cfg.NPadFrames = 3
	cfg.DilateLen = 2
	cfg.EventSampleRate = 0.5

	classes := testClasses()
	d, err := New(cfg, videos, classes, &stubReader{}, seededRNG(7))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < d.Len(); i++ {
		ex, err := d.GetExample()
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		if len(ex.Labels) != cfg.ClipLen {
			t.Fatalf("draw %d: expected %d labels, got %d", i, cfg.ClipLen, len(ex.Labels))
		}
		for pos, l := range ex.Labels {
			if l < 0 || l >= classes.Len() {
				t.Fatalf("draw %d position %d: label %d outside [0,%d)", i, pos, l, classes.Len())
			}
		}
	}
}

func TestEventSampleWindowInvariant(t *testing.T) {
	videos := []annotation.Video{
		{Name: "a", NumFrames: 300, Events: []annotation.Event{
			{Frame: 0, Label: "goal"},
			{Frame: 7, Label: "card"},
			{Frame: 151, Label: "corner"},
			{Frame: 299, Label: "goal"},
		}},
		{Name: "b", NumFrames: 40, Events: []annotation.Event{
			{Frame: 39, Label: "goal"},
			{Frame: 3, Label: "card"},
		}},
	}

	for _, stride := range []int{1, 2, 3} {
		for _, pad := range []int{0, 2, 5} {
			for seed := int64(0); seed < 20; seed++ {
				cfg := validConfig()
				cfg.ClipLen = 16
				cfg.FrameSampleStride = stride
				cfg.NPadFrames = pad
				cfg.EventSampleRate = 0.5

				d, err := New(cfg, videos, testClasses(), &stubReader{}, seededRNG(seed))
				if err != nil {
					t.Fatal(err)
				}

				for draw := 0; draw < 200; draw++ {
					videoIdx, start := d.sampleEvent()
					// Recover which event this window must contain: at least
					// one event of the video has to satisfy the invariant.
					ok := false
					for _, e := range videos[videoIdx].Events {
						if start <= e.Frame && e.Frame < start+cfg.ClipLen*stride {
							ok = true
							break
						}
					}
					if !ok {
						t.Fatalf("stride=%d pad=%d seed=%d: window [%d,%d) of %q contains no event",
							stride, pad, seed, start, start+cfg.ClipLen*stride, videos[videoIdx].Name)
					}
				}
			}
		}
	}
}

func TestUniformStartBounds(t *testing.T) {
	videos := []annotation.Video{{Name: "a", NumFrames: 120}}

	for _, stride := range []int{1, 3} {
		for _, pad := range []int{0, 4} {
			cfg := validConfig()
			cfg.ClipLen = 20
			cfg.FrameSampleStride = stride
			cfg.NPadFrames = pad

			d, err := New(cfg, videos, testClasses(), &stubReader{}, seededRNG(11))
			if err != nil {
				t.Fatal(err)
			}

			lo := -pad * stride
			span := 120 - 1 + (2*pad-cfg.ClipLen)*stride
			if span < 0 {
				span = 0
			}
			hi := lo + span
			for i := 0; i < 2000; i++ {
				_, start := d.sampleClip()
				if start < lo || start > hi {
					t.Fatalf("stride=%d pad=%d: start %d outside [%d,%d]", stride, pad, start, lo, hi)
				}
			}
		}
	}
}

func TestLabelDilation(t *testing.T) {
	const (
		eventFrame = 50
		dilate     = 3
	)
	videos := []annotation.Video{
		{Name: "a", NumFrames: 100, Events: []annotation.Event{{Frame: eventFrame, Label: "goal"}}},
	}

	cfg := validConfig()
	cfg.ClipLen = 30
	cfg.DilateLen = dilate
	cfg.EventSampleRate = 0.5 // force plenty of windows that contain the event

	classes := testClasses()
	goal, err := classes.Index("goal")
	if err != nil {
		t.Fatal(err)
	}

	d, err := New(cfg, videos, classes, &stubReader{}, seededRNG(3))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 200; i++ {
		ex, err := d.GetExample()
		if err != nil {
			t.Fatal(err)
		}
		idx := eventFrame - ex.StartFrame // stride 1
		for pos, l := range ex.Labels {
			inWindow := pos >= idx-dilate && pos <= idx+dilate
			switch {
			case inWindow && l != goal:
				t.Fatalf("start=%d position %d: expected class %d, got %d", ex.StartFrame, pos, goal, l)
			case !inWindow && l != 0:
				t.Fatalf("start=%d position %d: expected background, got %d", ex.StartFrame, pos, l)
			}
		}
	}
}

func TestLastEventWinsOnOverlap(t *testing.T) {
	// Two events close enough that their dilation windows overlap; the
	// later annotation must overwrite the earlier one in the overlap.
	videos := []annotation.Video{
		{Name: "a", NumFrames: 100, Events: []annotation.Event{
			{Frame: 50, Label: "goal"},
			{Frame: 52, Label: "card"},
		}},
	}

	cfg := validConfig()
	cfg.ClipLen = 100
	cfg.DilateLen = 4
	cfg.NPadFrames = 0
	// clip covers the full video, start pinned to 0
	cfg.DatasetLen = 1

	classes := testClasses()
	d, err := New(cfg, videos, classes, &stubReader{}, seededRNG(5))
	if err != nil {
		t.Fatal(err)
	}

	ex, err := d.GetExample()
	if err != nil {
		t.Fatal(err)
	}
	if ex.StartFrame != 0 {
		t.Fatalf("expected start 0, got %d", ex.StartFrame)
	}

	goal, _ := classes.Index("goal")
	card, _ := classes.Index("card")
	// goal dilation covers [46,54], card covers [48,56]; card wrote last.
	for pos := 46; pos <= 47; pos++ {
		if ex.Labels[pos] != goal {
			t.Errorf("position %d: expected goal (%d), got %d", pos, goal, ex.Labels[pos])
		}
	}
	for pos := 48; pos <= 56; pos++ {
		if ex.Labels[pos] != card {
			t.Errorf("position %d: expected card (%d), got %d", pos, card, ex.Labels[pos])
		}
	}
}

func TestContainsEventFlag(t *testing.T) {
	videos := []annotation.Video{
		{Name: "with", NumFrames: 50, Events: []annotation.Event{{Frame: 25, Label: "goal"}}},
	}

	cfg := validConfig()
	cfg.ClipLen = 50
	cfg.DatasetLen = 50

	d, err := New(cfg, videos, testClasses(), &stubReader{}, seededRNG(9))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < d.Len(); i++ {
		ex, err := d.GetExample()
		if err != nil {
			t.Fatal(err)
		}
		any := 0
		for _, l := range ex.Labels {
			if l != 0 {
				any = 1
				break
			}
		}
		if ex.ContainsEvent != any {
			t.Fatalf("ContainsEvent=%d but labels non-background=%d", ex.ContainsEvent, any)
		}
	}
}

func TestRetryOnUnloadableWindow(t *testing.T) {
	videos := []annotation.Video{{Name: "a", NumFrames: 100}}
	reader := &stubReader{failFirst: 2}

	d, err := New(validConfig(), videos, testClasses(), reader, seededRNG(13))
	if err != nil {
		t.Fatal(err)
	}

	ex, err := d.GetExample()
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if reader.calls != 3 {
		t.Fatalf("expected exactly 3 reader calls, got %d", reader.calls)
	}
	if len(ex.Frames) != 10 {
		t.Fatalf("expected 10 frames, got %d", len(ex.Frames))
	}
}

func TestRetryCeiling(t *testing.T) {
	videos := []annotation.Video{{Name: "a", NumFrames: 100}}
	reader := &stubReader{failAll: true}

	cfg := validConfig()
	cfg.MaxLoadRetries = 7

	d, err := New(cfg, videos, testClasses(), reader, seededRNG(17))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := d.GetExample(); err == nil {
		t.Fatal("expected error after retry ceiling")
	}
	if reader.calls != 7 {
		t.Fatalf("expected 7 reader calls, got %d", reader.calls)
	}
}

func TestUnknownLabelIsFatal(t *testing.T) {
	videos := []annotation.Video{
		{Name: "a", NumFrames: 50, Events: []annotation.Event{{Frame: 25, Label: "offside"}}},
	}

	cfg := validConfig()
	cfg.ClipLen = 50

	d, err := New(cfg, videos, testClasses(), &stubReader{}, seededRNG(19))
	if err != nil {
		t.Fatal(err)
	}

	_, err = d.GetExample()
	if !errors.Is(err, annotation.ErrUnknownLabel) {
		t.Fatalf("expected ErrUnknownLabel, got %v", err)
	}
}

func TestReaderContract(t *testing.T) {
	videos := []annotation.Video{{Name: "match_001", NumFrames: 100}}
	reader := &stubReader{}

	cfg := validConfig()
	cfg.ClipLen = 12
	cfg.FrameSampleStride = 3
	cfg.NPadFrames = 2
	cfg.IsEval = false

	d, err := New(cfg, videos, testClasses(), reader, seededRNG(23))
	if err != nil {
		t.Fatal(err)
	}
	ex, err := d.GetExample()
	if err != nil {
		t.Fatal(err)
	}

	if reader.lastName != "match_001" {
		t.Errorf("expected clip name match_001, got %q", reader.lastName)
	}
	if got := reader.lastEnd - reader.lastStart; got != cfg.ClipLen*cfg.FrameSampleStride {
		t.Errorf("expected window span %d, got %d", cfg.ClipLen*cfg.FrameSampleStride, got)
	}
	if !reader.lastPadEnd {
		t.Error("expected padEndFrame=true")
	}
	if reader.lastStride != 3 {
		t.Errorf("expected stride 3, got %d", reader.lastStride)
	}
	if !reader.lastRandom {
		t.Error("expected randomSample=true outside eval mode")
	}
	if len(ex.Frames) != cfg.ClipLen {
		t.Errorf("expected %d frames, got %d", cfg.ClipLen, len(ex.Frames))
	}
}

func TestEvalModeDisablesRandomSampling(t *testing.T) {
	videos := []annotation.Video{{Name: "a", NumFrames: 100}}
	reader := &stubReader{}

	cfg := validConfig()
	cfg.IsEval = true

	d, err := New(cfg, videos, testClasses(), reader, seededRNG(29))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.GetExample(); err != nil {
		t.Fatal(err)
	}
	if reader.lastRandom {
		t.Error("expected randomSample=false in eval mode")
	}
}

func TestWeightedVideoSelection(t *testing.T) {
	videos := []annotation.Video{
		{Name: "short", NumFrames: 100},
		{Name: "long", NumFrames: 300},
	}

	cfg := validConfig()
	cfg.DatasetLen = 1

	d, err := New(cfg, videos, testClasses(), &stubReader{}, seededRNG(31))
	if err != nil {
		t.Fatal(err)
	}

	const draws = 20000
	counts := make([]int, len(videos))
	for i := 0; i < draws; i++ {
		videoIdx, _ := d.sampleClip()
		counts[videoIdx]++
	}

	want := []float64{0.25, 0.75}
	for i, c := range counts {
		got := float64(c) / draws
		if math.Abs(got-want[i]) > 0.02 {
			t.Errorf("video %d: empirical frequency %.4f, expected %.2f +/- 0.02", i, got, want[i])
		}
	}
}

func TestStrategySelectionDirection(t *testing.T) {
	// Video "quiet" dominates by length but has no events; "busy" is short
	// with one event. A near-zero EventSampleRate sends almost every draw
	// down the event-centred branch, so draws concentrate on "busy".
	videos := []annotation.Video{
		{Name: "quiet", NumFrames: 10000},
		{Name: "busy", NumFrames: 100, Events: []annotation.Event{{Frame: 50, Label: "goal"}}},
	}

	cfg := validConfig()
	cfg.ClipLen = 20
	cfg.EventSampleRate = 1e-9

	d, err := New(cfg, videos, testClasses(), &stubReader{}, seededRNG(37))
	if err != nil {
		t.Fatal(err)
	}

	busy := 0
	const draws = 500
	for i := 0; i < draws; i++ {
		videoIdx, _ := d.sample()
		if videos[videoIdx].Name == "busy" {
			busy++
		}
	}
	if busy < draws*95/100 {
		t.Fatalf("expected near-total event-centred draws at tiny rate, got %d/%d from busy", busy, draws)
	}

	// A rate close to 1 flips it: the uniform branch dominates and draws
	// follow video length instead.
	cfg.EventSampleRate = 0.999999
	d, err = New(cfg, videos, testClasses(), &stubReader{}, seededRNG(41))
	if err != nil {
		t.Fatal(err)
	}
	busy = 0
	for i := 0; i < draws; i++ {
		videoIdx, _ := d.sample()
		if videos[videoIdx].Name == "busy" {
			busy++
		}
	}
	if busy > draws/10 {
		t.Fatalf("expected mostly length-weighted draws at rate ~1, got %d/%d from busy", busy, draws)
	}
}

func TestFloorDiv(t *testing.T) {
	tests := []struct {
		a, b, want int
	}{
		{7, 2, 3},
		{6, 2, 3},
		{-1, 2, -1},
		{-4, 2, -2},
		{-5, 2, -3},
		{0, 3, 0},
		{-7, 3, -3},
	}
	for _, tt := range tests {
		if got := floorDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("floorDiv(%d,%d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestVideoWeightsSumToOne(t *testing.T) {
	videos := []annotation.Video{
		{Name: "a", NumFrames: 10},
		{Name: "b", NumFrames: 20},
		{Name: "c", NumFrames: 70},
	}
	d, err := New(validConfig(), videos, testClasses(), &stubReader{}, seededRNG(43))
	if err != nil {
		t.Fatal(err)
	}

	var sum float64
	for _, w := range d.VideoWeights() {
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("weights sum to %v, expected 1", sum)
	}
	if w := d.VideoWeights(); math.Abs(w[2]-0.7) > 1e-9 {
		t.Fatalf("expected weight 0.7 for longest video, got %v", w[2])
	}
}

func ExampleActionSpotDataset_Len() {
	videos := []annotation.Video{{Name: "a", NumFrames: 100}}
	d, _ := New(validConfig(), videos, testClasses(), &stubReader{}, seededRNG(1))
	fmt.Println(d.Len())
	// Output: 5
}
