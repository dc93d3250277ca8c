package vision

import (
	"errors"
	"testing"
)

func TestDefaultConfig_ReferenceValues(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ROI != (ROI{X0: 80, Y0: 0, X1: 240, Y1: 80}) {
		t.Errorf("Expected reference ROI, got %+v", cfg.ROI)
	}
	if cfg.BlurKernel != 5 {
		t.Errorf("Expected BlurKernel=5, got %d", cfg.BlurKernel)
	}
	if cfg.BlockSize != 11 || cfg.C != 2 {
		t.Errorf("Expected BlockSize=11 C=2, got %d %v", cfg.BlockSize, cfg.C)
	}
	if cfg.Method != MethodGaussian || cfg.Retrieval != RetrievalList || cfg.Invert {
		t.Errorf("Expected gaussian/list/non-inverted, got %+v", cfg)
	}
}

func TestPresets_Valid(t *testing.T) {
	for name, cfg := range Presets() {
		if errs := cfg.Validate(); len(errs) > 0 {
			t.Errorf("%s: unexpected validation errors: %v", name, errs)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"even block", func(c *Config) { c.BlockSize = 10 }},
		{"tiny block", func(c *Config) { c.BlockSize = 1 }},
		{"even blur", func(c *Config) { c.BlurKernel = 4 }},
		{"bad method", func(c *Config) { c.Method = "otsu" }},
		{"bad retrieval", func(c *Config) { c.Retrieval = "tree" }},
		{"negative min area", func(c *Config) { c.MinArea = -1 }},
		{"empty roi", func(c *Config) { c.ROI = ROI{X0: 10, X1: 10, Y1: 5} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if errs := cfg.Validate(); len(errs) != 1 {
				t.Errorf("Expected one validation error, got %v", errs)
			}
		})
	}
}

func TestROI_Validate(t *testing.T) {
	if err := ReferenceROI.Validate(320, 240); err != nil {
		t.Errorf("Expected reference ROI to fit 320x240, got %v", err)
	}
	if err := ReferenceROI.Validate(200, 240); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for narrow frame, got %v", err)
	}
	if err := (ROI{X0: 5, Y0: 5, X1: 5, Y1: 10}).Validate(320, 240); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty ROI, got %v", err)
	}
	if ReferenceROI.Width() != 160 || ReferenceROI.Height() != 80 {
		t.Errorf("Expected 160x80, got %dx%d", ReferenceROI.Width(), ReferenceROI.Height())
	}
}
