package robot

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// ServoConfig describes a Feetech STS head-tilt servo.
type ServoConfig struct {
	Port       string        `yaml:"port" json:"port"`
	BaudRate   int           `yaml:"baud_rate" json:"baud_rate"`
	ID         int           `yaml:"id" json:"id"`
	CenterStep int           `yaml:"center_step" json:"center_step"` // Position at head angle 0
	Inverted   bool          `yaml:"inverted" json:"inverted"`       // Steps decrease as the head tilts up
	MoveTime   time.Duration `yaml:"move_time" json:"move_time"`     // Time given to each head move
}

// DefaultServoConfig returns settings for a single STS3215 on ID 1.
func DefaultServoConfig() ServoConfig {
	return ServoConfig{
		Port:       "/dev/ttyACM0",
		BaudRate:   1_000_000,
		ID:         1,
		CenterStep: 2048,
		MoveTime:   300 * time.Millisecond,
	}
}

// stepsPerRev is the STS encoder resolution.
const stepsPerRev = 4096

// RadiansToSteps maps a head angle to a raw servo position.
func (c ServoConfig) RadiansToSteps(rad float64) int {
	steps := int(math.Round(rad / (2 * math.Pi) * stepsPerRev))
	if c.Inverted {
		steps = -steps
	}
	return c.CenterStep + steps
}

// StepsToRadians maps a raw servo position to a head angle.
func (c ServoConfig) StepsToRadians(pos int) float64 {
	steps := pos - c.CenterStep
	if c.Inverted {
		steps = -steps
	}
	return float64(steps) / stepsPerRev * 2 * math.Pi
}

// ServoHead implements HeadController on a Feetech bus servo.
type ServoHead struct {
	cfg   ServoConfig
	bus   *feetech.Bus
	servo *feetech.Servo
}

// OpenServoHead opens the bus, locates the configured servo and enables
// torque.
func OpenServoHead(ctx context.Context, cfg ServoConfig) (*ServoHead, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	found, err := bus.Scan(ctx, cfg.ID, cfg.ID)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("scan servo %d: %w", cfg.ID, err)
	}
	if len(found) == 0 {
		bus.Close()
		return nil, fmt.Errorf("%w: head servo %d not found on %s", ErrActuatorFault, cfg.ID, cfg.Port)
	}

	servo := feetech.NewServo(bus, found[0].ID, found[0].Model)
	if err := servo.Enable(ctx); err != nil {
		bus.Close()
		return nil, fmt.Errorf("enable servo %d: %w", cfg.ID, err)
	}

	return &ServoHead{cfg: cfg, bus: bus, servo: servo}, nil
}

// SetHeadAngle moves the servo and blocks for the configured move time.
func (h *ServoHead) SetHeadAngle(ctx context.Context, rad float64) error {
	target := h.cfg.RadiansToSteps(ClampHeadAngle(rad))
	if err := h.servo.SetPositionWithTime(ctx, target, int(h.cfg.MoveTime.Milliseconds())); err != nil {
		return fmt.Errorf("%w: head servo: %w", ErrActuatorFault, err)
	}

	select {
	case <-time.After(h.cfg.MoveTime):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: head servo: %w", ErrActuatorFault, ctx.Err())
	}
}

// HeadAngle reads the current head angle.
func (h *ServoHead) HeadAngle(ctx context.Context) (float64, error) {
	pos, err := h.servo.Position(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: read head servo: %w", ErrActuatorFault, err)
	}
	return h.cfg.StepsToRadians(pos), nil
}

// Close disables torque and closes the bus.
func (h *ServoHead) Close() error {
	h.servo.Disable(context.Background())
	return h.bus.Close()
}
