package follower

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-linefollow/pkg/steering"
	"github.com/teslashibe/go-linefollow/pkg/vision"
)

func TestTuning_UpdatePresetThenOverride(t *testing.T) {
	tu := NewTuning(defaultParams())

	err := tu.Update(map[string]interface{}{
		"vision_preset":   "shadows",
		"steering_preset": "cautious",
		"c":               3.5,
		"band_lo_px":      float64(70),
		"full_turn_ms":    15000,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	p := tu.Get()
	if p.Vision.BlockSize != vision.ShadowsConfig().BlockSize {
		t.Errorf("Expected shadows block size, got %d", p.Vision.BlockSize)
	}
	if p.Vision.C != 3.5 {
		t.Errorf("Expected override c=3.5, got %v", p.Vision.C)
	}
	if p.Steering.ForwardSpeedMMPS != steering.CautiousConfig().ForwardSpeedMMPS {
		t.Errorf("Expected cautious speed, got %v", p.Steering.ForwardSpeedMMPS)
	}
	if p.Steering.BandLoPx != 70 {
		t.Errorf("Expected band_lo_px=70, got %d", p.Steering.BandLoPx)
	}
	if p.Steering.FullTurnDuration != 15*time.Second {
		t.Errorf("Expected 15s full turn, got %v", p.Steering.FullTurnDuration)
	}
}

func TestTuning_UpdateFromJSON(t *testing.T) {
	tu := NewTuning(defaultParams())

	dec := json.NewDecoder(strings.NewReader(`{"block_size": 15, "invert": true, "method": "mean"}`))
	dec.UseNumber()
	var params map[string]interface{}
	if err := dec.Decode(&params); err != nil {
		t.Fatal(err)
	}
	if err := tu.Update(params); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	p := tu.Get()
	if p.Vision.BlockSize != 15 || !p.Vision.Invert || p.Vision.Method != vision.MethodMean {
		t.Errorf("Unexpected vision params %+v", p.Vision)
	}
}

func TestTuning_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]interface{}
	}{
		{"unknown key", map[string]interface{}{"gain": 1.0}},
		{"unknown preset", map[string]interface{}{"vision_preset": "neon"}},
		{"wrong type", map[string]interface{}{"invert": "yes"}},
		{"fractional int", map[string]interface{}{"block_size": 11.5}},
		{"invalid value", map[string]interface{}{"block_size": 4}},
		{"inverted band", map[string]interface{}{"band_lo_px": 90}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tu := NewTuning(defaultParams())
			before := tu.Get()
			if err := tu.Update(tc.params); err == nil {
				t.Fatal("Expected error")
			}
			if tu.Get() != before {
				t.Error("Expected params unchanged after a rejected update")
			}
		})
	}
}

func TestTuning_OnChange(t *testing.T) {
	tu := NewTuning(defaultParams())
	var got []Params
	tu.OnChange(func(p Params) { got = append(got, p) })

	if err := tu.Update(map[string]interface{}{"min_area": 12}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	tu.Update(map[string]interface{}{"block_size": 2})

	if len(got) != 1 || got[0].Vision.MinArea != 12 {
		t.Errorf("Expected one change notification, got %+v", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Fatalf("Default config invalid: %v", errs)
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero poll", func(c *Config) { c.FramePoll = 0 }},
		{"timeout below poll", func(c *Config) { c.FrameTimeout = c.FramePoll / 2 }},
		{"negative grace", func(c *Config) { c.TurnGrace = -time.Second }},
		{"negative cycles", func(c *Config) { c.MaxCycles = -1 }},
		{"head out of range", func(c *Config) { c.HeadAngleRad = 2 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			tc.modify(&c)
			if errs := c.Validate(); len(errs) == 0 {
				t.Error("Expected validation errors")
			}
		})
	}
}
