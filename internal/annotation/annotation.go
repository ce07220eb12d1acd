package annotation

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Event marks a single annotated frame within a video.
type Event struct {
	Frame int    `json:"frame"`
	Label string `json:"label"`
}

// Video is the per-video annotation record: the clip name, its total frame
// count, and the sparse list of labelled frames. Events are kept in
// annotation order; downstream label construction relies on that order.
type Video struct {
	Name      string  `json:"video"`
	NumFrames int     `json:"num_frames"`
	Events    []Event `json:"events"`
}

// EventsInRange returns the events whose frame index lies in [0, NumFrames).
// Out-of-range events can occur when annotations were produced against a
// different cut of the source video.
func (v *Video) EventsInRange() []Event {
	in := make([]Event, 0, len(v.Events))
	for _, e := range v.Events {
		if e.Frame >= 0 && e.Frame < v.NumFrames {
			in = append(in, e)
		}
	}
	return in
}

// Validate checks basic integrity of the record. It does not reject events
// outside [0, NumFrames); those are filtered where it matters.
func (v *Video) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("annotation record has empty video name")
	}
	if v.NumFrames < 0 {
		return fmt.Errorf("video %q has negative frame count %d", v.Name, v.NumFrames)
	}
	for i, e := range v.Events {
		if e.Label == "" {
			return fmt.Errorf("video %q event %d has empty label", v.Name, i)
		}
	}
	return nil
}

// ReadVideos decodes an annotation set from r. The expected format is a JSON
// array of {video, num_frames, events} records.
func ReadVideos(r io.Reader) ([]Video, error) {
	var videos []Video
	if err := json.NewDecoder(r).Decode(&videos); err != nil {
		return nil, fmt.Errorf("decode annotations: %w", err)
	}
	for i := range videos {
		if err := videos[i].Validate(); err != nil {
			return nil, fmt.Errorf("annotation record %d: %w", i, err)
		}
	}
	return videos, nil
}

// LoadVideos reads an annotation set from a JSON file on disk.
func LoadVideos(path string) ([]Video, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open annotation file: %w", err)
	}
	defer f.Close()

	videos, err := ReadVideos(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return videos, nil
}
