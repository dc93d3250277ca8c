package follower

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-linefollow/pkg/steering"
	"github.com/teslashibe/go-linefollow/pkg/vision"
)

// Params are the runtime-adjustable pipeline parameters.
type Params struct {
	Vision   vision.Config   `yaml:"vision" json:"vision"`
	Steering steering.Config `yaml:"steering" json:"steering"`
}

// Validate checks both halves.
func (p *Params) Validate() []string {
	var errs []string
	for _, e := range p.Vision.Validate() {
		errs = append(errs, "vision: "+e)
	}
	for _, e := range p.Steering.Validate() {
		errs = append(errs, "steering: "+e)
	}
	return errs
}

// Tuning holds the live Params. The loop takes one snapshot per cycle, so
// changes land between cycles and never inside one.
type Tuning struct {
	mu       sync.RWMutex
	params   Params
	onChange []func(Params)
}

// NewTuning creates a tuning holder with initial params.
func NewTuning(p Params) *Tuning {
	return &Tuning{params: p}
}

// Get returns the current params.
func (t *Tuning) Get() Params {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.params
}

// OnChange registers fn to be called after every successful update.
func (t *Tuning) OnChange(fn func(Params)) {
	t.mu.Lock()
	t.onChange = append(t.onChange, fn)
	t.mu.Unlock()
}

// Set replaces the params after validation.
func (t *Tuning) Set(p Params) error {
	if errs := p.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid tuning: %s", strings.Join(errs, "; "))
	}

	t.mu.Lock()
	t.params = p
	hooks := append([]func(Params){}, t.onChange...)
	t.mu.Unlock()

	for _, fn := range hooks {
		fn(p)
	}
	return nil
}

// Update applies a partial change given as field names to values, e.g. from
// a JSON request body. "vision_preset" and "steering_preset" load a preset
// first; other keys override individual fields on top of it.
func (t *Tuning) Update(params map[string]interface{}) error {
	p := t.Get()

	// Check for presets first
	if name, ok := params["vision_preset"].(string); ok {
		preset, found := vision.Presets()[name]
		if !found {
			return fmt.Errorf("unknown vision preset: %s", name)
		}
		p.Vision = preset
	}
	if name, ok := params["steering_preset"].(string); ok {
		preset, found := steering.Presets()[name]
		if !found {
			return fmt.Errorf("unknown steering preset: %s", name)
		}
		p.Steering = preset
	}

	for key, value := range params {
		if err := apply(&p, key, value); err != nil {
			return err
		}
	}

	return t.Set(p)
}

func apply(p *Params, key string, value interface{}) error {
	bad := func() error {
		return fmt.Errorf("invalid value for %s: %v", key, value)
	}

	switch key {
	case "vision_preset", "steering_preset":
		return nil

	// Vision
	case "blur_kernel":
		v, ok := toInt(value)
		if !ok {
			return bad()
		}
		p.Vision.BlurKernel = v
	case "method":
		v, ok := value.(string)
		if !ok {
			return bad()
		}
		p.Vision.Method = v
	case "block_size":
		v, ok := toInt(value)
		if !ok {
			return bad()
		}
		p.Vision.BlockSize = v
	case "c":
		v, ok := toFloat(value)
		if !ok {
			return bad()
		}
		p.Vision.C = v
	case "invert":
		v, ok := value.(bool)
		if !ok {
			return bad()
		}
		p.Vision.Invert = v
	case "retrieval":
		v, ok := value.(string)
		if !ok {
			return bad()
		}
		p.Vision.Retrieval = v
	case "min_area":
		v, ok := toFloat(value)
		if !ok {
			return bad()
		}
		p.Vision.MinArea = v

	// Steering
	case "look_ahead_mm":
		v, ok := toFloat(value)
		if !ok {
			return bad()
		}
		p.Steering.LookAheadMM = v
	case "center_px":
		v, ok := toInt(value)
		if !ok {
			return bad()
		}
		p.Steering.CenterPx = v
	case "band_lo_px":
		v, ok := toInt(value)
		if !ok {
			return bad()
		}
		p.Steering.BandLoPx = v
	case "band_hi_px":
		v, ok := toInt(value)
		if !ok {
			return bad()
		}
		p.Steering.BandHiPx = v
	case "straight_margin_mm":
		v, ok := toFloat(value)
		if !ok {
			return bad()
		}
		p.Steering.StraightMarginMM = v
	case "forward_speed_mmps":
		v, ok := toFloat(value)
		if !ok {
			return bad()
		}
		p.Steering.ForwardSpeedMMPS = v
	case "turn_wheel_speed_mmps":
		v, ok := toFloat(value)
		if !ok {
			return bad()
		}
		p.Steering.TurnWheelSpeedMMPS = v
	case "full_turn_ms":
		v, ok := toFloat(value)
		if !ok {
			return bad()
		}
		p.Steering.FullTurnDuration = time.Duration(v * float64(time.Millisecond))

	default:
		return fmt.Errorf("unknown tuning parameter: %s", key)
	}
	return nil
}

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		if val != float64(int(val)) {
			return 0, false
		}
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		if err == nil {
			return f, true
		}
	}
	return 0, false
}
