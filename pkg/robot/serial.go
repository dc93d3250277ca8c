package robot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	serial "go.bug.st/serial"
	"go.uber.org/multierr"
)

// LinePort is a newline-delimited text channel to a microcontroller.
type LinePort interface {
	WriteLine(line string) error
	ReadLine(ctx context.Context) (string, error)
	Close() error
}

// SerialPort implements LinePort over go.bug.st/serial. A single reader
// goroutine feeds lines into a buffered channel so a timed-out read never
// swallows the next reply.
type SerialPort struct {
	port  io.ReadWriteCloser
	lines chan string
	errc  chan error

	done      chan struct{}
	closeOnce sync.Once
}

// OpenSerialPort opens a serial device with given path and baudrate.
func OpenSerialPort(dev string, baud int) (*SerialPort, error) {
	p, err := serial.Open(dev, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial %s: %w", dev, err)
	}
	return newSerialPort(p), nil
}

func newSerialPort(rw io.ReadWriteCloser) *SerialPort {
	sp := &SerialPort{
		port:  rw,
		lines: make(chan string, 16),
		errc:  make(chan error, 1),
		done:  make(chan struct{}),
	}
	go sp.readLoop(rw)
	return sp
}

func (s *SerialPort) readLoop(r io.Reader) {
	defer close(s.lines)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			select {
			case s.lines <- line:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.errc <- err
			return
		}
	}
}

// ReadLine returns the next line, blocking until one arrives or ctx ends.
func (s *SerialPort) ReadLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-s.lines:
		if !ok {
			select {
			case err := <-s.errc:
				return "", err
			default:
				return "", io.EOF
			}
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// WriteLine writes a single line followed by '\n' to the serial port.
func (s *SerialPort) WriteLine(line string) error {
	_, err := s.port.Write(append([]byte(line), '\n'))
	return err
}

// Close closes the underlying serial connection and releases the reader.
func (s *SerialPort) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.port.Close()
	})
	return err
}

// SerialConfig holds the serial base settings.
type SerialConfig struct {
	Device      string        `yaml:"device" json:"device"`
	Baud        int           `yaml:"baud" json:"baud"`
	ReplyGrace  time.Duration `yaml:"reply_grace" json:"reply_grace"`   // Added to the expected drive time when waiting for DONE
	AckTimeout  time.Duration `yaml:"ack_timeout" json:"ack_timeout"`   // Wait for OK on immediate commands
	HeadDegrees bool          `yaml:"head_degrees" json:"head_degrees"` // Firmware expects head angle in degrees
}

// DefaultSerialConfig returns settings for an Arduino-class drive board.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Device:      "/dev/ttyUSB0",
		Baud:        115200,
		ReplyGrace:  2 * time.Second,
		AckTimeout:  500 * time.Millisecond,
		HeadDegrees: true,
	}
}

// errNoReply marks a command the board never answered.
var errNoReply = errors.New("no reply")

// SerialBase implements Base over a line protocol:
//
//	S,<mm>,<mmps>      drive straight, replies DONE when finished
//	W,<l>,<r>,<ms>     run wheels, replies OK when accepted
//	H,<angle>          set head angle, replies DONE when finished
//	X                  stop wheels, replies OK
//	B                  battery, replies B,<volts>
//
// Any command may be answered with ERR,<message>. X is accepted while S or
// H is running; the interrupted command still ends with DONE or ERR.
//
// Replies are matched to commands in the order they were sent. A reply to
// a command whose caller gave up is dropped rather than handed to the next
// command waiting for the same word.
type SerialBase struct {
	cfg    SerialConfig
	port   LinePort
	logger *slog.Logger

	// One ordinary command in flight at a time. Stop does not take it.
	cmdMu sync.Mutex

	mu      sync.Mutex // guards the fields below and port writes
	pending []*pendingReply
	closed  bool
	readErr error

	broken chan struct{} // closed when the reader stops
	cancel context.CancelFunc
}

type pendingReply struct {
	cmd   string
	want  string
	reply chan string

	// Set once the caller stops waiting; the reply is expected by then.
	abandoned bool
	expires   time.Time
}

// NewSerialBase wraps an open port and starts reading replies from it.
func NewSerialBase(port LinePort, cfg SerialConfig, logger *slog.Logger) *SerialBase {
	if logger == nil {
		logger = slog.Default().With("component", "robot.serial")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &SerialBase{
		cfg:    cfg,
		port:   port,
		logger: logger,
		broken: make(chan struct{}),
		cancel: cancel,
	}
	go s.readLoop(ctx)
	return s
}

// OpenSerialBase opens cfg.Device and returns a SerialBase on it.
func OpenSerialBase(cfg SerialConfig, logger *slog.Logger) (*SerialBase, error) {
	p, err := OpenSerialPort(cfg.Device, cfg.Baud)
	if err != nil {
		return nil, err
	}
	return NewSerialBase(p, cfg, logger), nil
}

// DriveStraight sends S and waits for DONE. If ctx ends or the board goes
// quiet first, X is sent so the wheels do not keep running.
func (s *SerialBase) DriveStraight(ctx context.Context, distanceMM, speedMMPS float64) error {
	if speedMMPS <= 0 {
		return fmt.Errorf("%w: drive straight: speed must be > 0", ErrActuatorFault)
	}
	expected := time.Duration(math.Abs(distanceMM) / speedMMPS * float64(time.Second))
	cmd := fmt.Sprintf("S,%.1f,%.1f", distanceMM, speedMMPS)
	_, err := s.exchange(ctx, cmd, "DONE", expected+s.cfg.ReplyGrace)
	if err != nil && (ctx.Err() != nil || errors.Is(err, errNoReply)) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.AckTimeout)
		defer cancel()
		if serr := s.Stop(sctx); serr != nil {
			err = multierr.Append(err, serr)
		}
	}
	return err
}

// DriveWheels sends W and returns once the board acknowledges it.
func (s *SerialBase) DriveWheels(ctx context.Context, leftMMPS, rightMMPS float64, d time.Duration) (*Motion, error) {
	cmd := fmt.Sprintf("W,%.1f,%.1f,%d", leftMMPS, rightMMPS, d.Milliseconds())
	if _, err := s.exchange(ctx, cmd, "OK", s.cfg.AckTimeout); err != nil {
		return nil, err
	}
	return NewTimedMotion(d, s.Stop), nil
}

// SetHeadAngle sends H and waits for DONE.
func (s *SerialBase) SetHeadAngle(ctx context.Context, rad float64) error {
	angle := ClampHeadAngle(rad)
	if s.cfg.HeadDegrees {
		angle = angle * 180 / math.Pi
	}
	_, err := s.exchange(ctx, fmt.Sprintf("H,%.2f", angle), "DONE", s.cfg.ReplyGrace)
	return err
}

// Stop sends X. It does not wait for a running S or H to finish.
func (s *SerialBase) Stop(ctx context.Context) error {
	_, err := s.roundTrip(ctx, "X", "OK", s.cfg.AckTimeout)
	return err
}

// BatteryVoltage sends B and parses the reply.
func (s *SerialBase) BatteryVoltage(ctx context.Context) (float64, error) {
	reply, err := s.exchange(ctx, "B", "B", s.cfg.AckTimeout)
	if err != nil {
		return 0, err
	}
	_, val, _ := strings.Cut(reply, ",")
	v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: battery reply %q: %w", ErrActuatorFault, reply, err)
	}
	return v, nil
}

// Close stops the reader and closes the port.
func (s *SerialBase) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	return s.port.Close()
}

// exchange runs one ordinary command, waiting for any previous one.
func (s *SerialBase) exchange(ctx context.Context, cmd, want string, timeout time.Duration) (string, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return s.roundTrip(ctx, cmd, want, timeout)
}

// roundTrip writes cmd and waits for the reply starting with want, or ERR.
func (s *SerialBase) roundTrip(ctx context.Context, cmd, want string, timeout time.Duration) (string, error) {
	p, err := s.send(cmd, want)
	if err != nil {
		return "", err
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case line := <-p.reply:
		if strings.HasPrefix(line, "ERR") {
			_, msg, _ := strings.Cut(line, ",")
			return "", fmt.Errorf("%w: %s rejected: %s", ErrActuatorFault, cmd, msg)
		}
		return line, nil

	case <-t.C:
		s.abandon(p)
		return "", fmt.Errorf("%w: %s: %w: no %s within %s", ErrActuatorFault, cmd, errNoReply, want, timeout)

	case <-ctx.Done():
		s.abandon(p)
		return "", fmt.Errorf("%w: %s: %w", ErrActuatorFault, cmd, ctx.Err())

	case <-s.broken:
		return "", fmt.Errorf("%w: %s: %w", ErrActuatorFault, cmd, s.readError())
	}
}

// send registers the reply slot before writing so a fast reply is never
// missed.
func (s *SerialBase) send(cmd, want string) (*pendingReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: %s: %w", ErrActuatorFault, cmd, ErrClosed)
	}
	if s.readErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrActuatorFault, cmd, s.readErr)
	}

	p := &pendingReply{cmd: cmd, want: want, reply: make(chan string, 1)}
	s.pending = append(s.pending, p)
	if err := s.port.WriteLine(cmd); err != nil {
		s.pending = s.pending[:len(s.pending)-1]
		return nil, fmt.Errorf("%w: write %s: %w", ErrActuatorFault, cmd, err)
	}
	return p, nil
}

// abandon keeps the slot for a while so the late reply is recognised as
// stale instead of answering a later command.
func (s *SerialBase) abandon(p *pendingReply) {
	grace := s.cfg.ReplyGrace
	if grace <= 0 {
		grace = DefaultSerialConfig().ReplyGrace
	}
	s.mu.Lock()
	p.abandoned = true
	p.expires = time.Now().Add(grace)
	s.mu.Unlock()
}

func (s *SerialBase) readError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.readErr
}

func (s *SerialBase) readLoop(ctx context.Context) {
	for {
		line, err := s.port.ReadLine(ctx)
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.pending = nil
			s.mu.Unlock()
			close(s.broken)
			if ctx.Err() == nil {
				s.logger.Warn("serial reader stopped", "error", err)
			}
			return
		}
		s.route(line)
	}
}

// route hands line to the oldest command it answers. ERR answers the oldest
// command other than X, since X is always acknowledged.
func (s *SerialBase) route(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	live := s.pending[:0]
	for _, p := range s.pending {
		if p.abandoned && now.After(p.expires) {
			continue
		}
		live = append(live, p)
	}
	clear(s.pending[len(live):])
	s.pending = live

	i := s.match(line)
	if i < 0 {
		s.logger.Debug("serial chatter", "line", line)
		return
	}
	p := s.pending[i]
	s.pending = append(s.pending[:i], s.pending[i+1:]...)

	if p.abandoned {
		s.logger.Debug("stale reply dropped", "line", line, "cmd", p.cmd)
		return
	}
	p.reply <- line
}

func (s *SerialBase) match(line string) int {
	if strings.HasPrefix(line, "ERR") {
		for i, p := range s.pending {
			if p.cmd != "X" {
				return i
			}
		}
		if len(s.pending) > 0 {
			return 0
		}
		return -1
	}
	for i, p := range s.pending {
		if line == p.want || strings.HasPrefix(line, p.want+",") {
			return i
		}
	}
	return -1
}
