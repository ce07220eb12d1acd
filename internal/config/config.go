// Package config loads dataset configuration files. Fields are pointers so
// partial configs are safe: anything omitted from the JSON falls back to
// the Get* defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/clipset/internal/dataset"
)

// validModalities are the frame modalities the frame stores are extracted
// in.
var validModalities = map[string]bool{
	"rgb":  true,
	"bw":   true,
	"flow": true,
}

// DatasetConfig is the on-disk configuration for one sampling run. The
// schema mirrors dataset.Config plus the file-system paths the CLI needs.
type DatasetConfig struct {
	ClipLen           *int     `json:"clip_len,omitempty"`
	DatasetLen        *int     `json:"dataset_len,omitempty"`
	Modality          *string  `json:"modality,omitempty"`
	IsEval            *bool    `json:"is_eval,omitempty"`
	CropDim           *int     `json:"crop_dim,omitempty"`
	FrameSampleStride *int     `json:"frame_sample_stride,omitempty"`
	SameCropTransform *bool    `json:"same_crop_transform,omitempty"`
	DilateLen         *int     `json:"dilate_len,omitempty"`
	Mixup             *bool    `json:"mixup,omitempty"`
	NPadFrames        *int     `json:"n_pad_frames,omitempty"`
	EventSampleRate   *float64 `json:"event_sample_rate,omitempty"`
	MaxLoadRetries    *int     `json:"max_load_retries,omitempty"`
	Seed              *int64   `json:"seed,omitempty"`

	// Paths
	FramesDir *string `json:"frames_dir,omitempty"`
	LabelFile *string `json:"label_file,omitempty"`
	ClassFile *string `json:"class_file,omitempty"`
	DBPath    *string `json:"db_path,omitempty"`
	FrameExt  *string `json:"frame_ext,omitempty"`
}

// Load reads a DatasetConfig from a JSON file. The file must have a .json
// extension and stay under 1MB.
func Load(path string) (*DatasetConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &DatasetConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks field-level constraints. Sampler-level invariants are
// re-checked by dataset.Config.Validate at construction.
func (c *DatasetConfig) Validate() error {
	if c.Modality != nil && !validModalities[*c.Modality] {
		return fmt.Errorf("modality must be rgb, bw, or flow, got %q", *c.Modality)
	}
	if c.ClipLen != nil && *c.ClipLen <= 0 {
		return fmt.Errorf("clip_len must be greater than 0, got %d", *c.ClipLen)
	}
	if c.FrameSampleStride != nil && *c.FrameSampleStride <= 0 {
		return fmt.Errorf("frame_sample_stride must be greater than 0, got %d", *c.FrameSampleStride)
	}
	if c.DatasetLen != nil && *c.DatasetLen <= 0 {
		return fmt.Errorf("dataset_len must be greater than 0, got %d", *c.DatasetLen)
	}
	if c.NPadFrames != nil && *c.NPadFrames < 0 {
		return fmt.Errorf("n_pad_frames must be non-negative, got %d", *c.NPadFrames)
	}
	if c.CropDim != nil && *c.CropDim < 0 {
		return fmt.Errorf("crop_dim must be non-negative, got %d", *c.CropDim)
	}
	return nil
}

// GetClipLen returns clip_len or the default.
func (c *DatasetConfig) GetClipLen() int {
	if c.ClipLen == nil {
		return 100
	}
	return *c.ClipLen
}

// GetDatasetLen returns dataset_len or the default.
func (c *DatasetConfig) GetDatasetLen() int {
	if c.DatasetLen == nil {
		return 50000
	}
	return *c.DatasetLen
}

// GetModality returns modality or the default.
func (c *DatasetConfig) GetModality() string {
	if c.Modality == nil {
		return "rgb"
	}
	return *c.Modality
}

// GetIsEval returns is_eval or the default.
func (c *DatasetConfig) GetIsEval() bool {
	if c.IsEval == nil {
		return true
	}
	return *c.IsEval
}

// GetCropDim returns crop_dim or 0 (no crop).
func (c *DatasetConfig) GetCropDim() int {
	if c.CropDim == nil {
		return 0
	}
	return *c.CropDim
}

// GetFrameSampleStride returns frame_sample_stride or the default.
func (c *DatasetConfig) GetFrameSampleStride() int {
	if c.FrameSampleStride == nil {
		return 1
	}
	return *c.FrameSampleStride
}

// GetSameCropTransform returns same_crop_transform or the default.
func (c *DatasetConfig) GetSameCropTransform() bool {
	if c.SameCropTransform == nil {
		return true
	}
	return *c.SameCropTransform
}

// GetDilateLen returns dilate_len or the default.
func (c *DatasetConfig) GetDilateLen() int {
	if c.DilateLen == nil {
		return 0
	}
	return *c.DilateLen
}

// GetMixup returns mixup or the default.
func (c *DatasetConfig) GetMixup() bool {
	if c.Mixup == nil {
		return false
	}
	return *c.Mixup
}

// GetNPadFrames returns n_pad_frames or the default.
func (c *DatasetConfig) GetNPadFrames() int {
	if c.NPadFrames == nil {
		return 5
	}
	return *c.NPadFrames
}

// GetEventSampleRate returns event_sample_rate or the default (disabled).
func (c *DatasetConfig) GetEventSampleRate() float64 {
	if c.EventSampleRate == nil {
		return -1
	}
	return *c.EventSampleRate
}

// GetMaxLoadRetries returns max_load_retries or 0 (library default).
func (c *DatasetConfig) GetMaxLoadRetries() int {
	if c.MaxLoadRetries == nil {
		return 0
	}
	return *c.MaxLoadRetries
}

// GetSeed returns seed or 0 (time-seeded RNG).
func (c *DatasetConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// GetFramesDir returns frames_dir or empty.
func (c *DatasetConfig) GetFramesDir() string {
	if c.FramesDir == nil {
		return ""
	}
	return *c.FramesDir
}

// GetLabelFile returns label_file or empty.
func (c *DatasetConfig) GetLabelFile() string {
	if c.LabelFile == nil {
		return ""
	}
	return *c.LabelFile
}

// GetClassFile returns class_file or empty.
func (c *DatasetConfig) GetClassFile() string {
	if c.ClassFile == nil {
		return ""
	}
	return *c.ClassFile
}

// GetDBPath returns db_path or empty.
func (c *DatasetConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetFrameExt returns frame_ext or empty (reader default).
func (c *DatasetConfig) GetFrameExt() string {
	if c.FrameExt == nil {
		return ""
	}
	return *c.FrameExt
}

// ToDatasetConfig converts the file config into the sampler's validated
// config value.
func (c *DatasetConfig) ToDatasetConfig() dataset.Config {
	return dataset.Config{
		ClipLen:           c.GetClipLen(),
		DatasetLen:        c.GetDatasetLen(),
		Modality:          c.GetModality(),
		IsEval:            c.GetIsEval(),
		CropDim:           c.GetCropDim(),
		FrameSampleStride: c.GetFrameSampleStride(),
		SameCropTransform: c.GetSameCropTransform(),
		DilateLen:         c.GetDilateLen(),
		Mixup:             c.GetMixup(),
		NPadFrames:        c.GetNPadFrames(),
		EventSampleRate:   c.GetEventSampleRate(),
		MaxLoadRetries:    c.GetMaxLoadRetries(),
	}
}
