package robot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

// fakePort replies to each written line from a script.
type fakePort struct {
	mu      sync.Mutex
	written []string
	replies map[string][]string // command prefix -> lines to emit
	lines   chan string
	closed  bool
}

func newFakePort(replies map[string][]string) *fakePort {
	return &fakePort{replies: replies, lines: make(chan string, 32)}
}

func (f *fakePort) WriteLine(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, line)
	for prefix, out := range f.replies {
		if strings.HasPrefix(line, prefix) {
			for _, l := range out {
				f.lines <- l
			}
		}
	}
	return nil
}

func (f *fakePort) ReadLine(ctx context.Context) (string, error) {
	select {
	case l := <-f.lines:
		return l, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePort) Written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func testSerialConfig() SerialConfig {
	cfg := DefaultSerialConfig()
	cfg.ReplyGrace = 100 * time.Millisecond
	cfg.AckTimeout = 50 * time.Millisecond
	return cfg
}

func TestMotion_TimedCompletes(t *testing.T) {
	m := NewTimedMotion(20*time.Millisecond, nil)
	if !m.Wait(context.Background(), time.Second) {
		t.Fatal("Expected motion to complete")
	}
	if m.Err() != nil {
		t.Errorf("Expected nil error, got %v", m.Err())
	}
}

func TestMotion_CancelStopsOnce(t *testing.T) {
	var stops int
	m := NewTimedMotion(time.Hour, func(ctx context.Context) error {
		stops++
		return nil
	})

	if err := m.Cancel(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := m.Cancel(context.Background()); err != nil {
		t.Fatalf("Unexpected error on second cancel: %v", err)
	}
	if stops != 1 {
		t.Errorf("Expected 1 stop, got %d", stops)
	}
	if !errors.Is(m.Err(), ErrMotionCancelled) {
		t.Errorf("Expected ErrMotionCancelled, got %v", m.Err())
	}
}

func TestMotion_WaitTimeout(t *testing.T) {
	m := NewMotion(time.Hour, nil)
	if m.Wait(context.Background(), 10*time.Millisecond) {
		t.Error("Expected Wait to time out")
	}
}

func TestHTTPBase_Commands(t *testing.T) {
	var mu sync.Mutex
	got := map[string]map[string]any{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		got[r.URL.Path] = body
		mu.Unlock()
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	b := NewHTTPBase(srv.URL)
	ctx := context.Background()

	if err := b.DriveStraight(ctx, 24.3, 50); err != nil {
		t.Fatalf("DriveStraight: %v", err)
	}
	m, err := b.DriveWheels(ctx, 0, -50, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("DriveWheels: %v", err)
	}
	if !m.Wait(ctx, time.Second) {
		t.Error("Expected wheel motion to complete")
	}
	if err := b.SetHeadAngle(ctx, -1); err != nil {
		t.Fatalf("SetHeadAngle: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if v := got["/api/drive/straight"]["distance_mm"]; v != 24.3 {
		t.Errorf("Expected distance_mm=24.3, got %v", v)
	}
	if v := got["/api/drive/wheels"]["right_mmps"]; v != -50.0 {
		t.Errorf("Expected right_mmps=-50, got %v", v)
	}
	if v := got["/api/drive/wheels"]["duration_ms"]; v != 30.0 {
		t.Errorf("Expected duration_ms=30, got %v", v)
	}
	// Clamped to the minimum head angle.
	if v, _ := got["/api/head/angle"]["angle_rad"].(float64); !floatEquals(v, MinHeadAngle) {
		t.Errorf("Expected angle_rad=%v, got %v", MinHeadAngle, v)
	}
}

func TestHTTPBase_Faults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/drive/straight":
			w.Write([]byte(`{"ok":false,"error":"wheel stalled"}`))
		case "/api/battery":
			w.Write([]byte(`{"volts":3.72}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	b := NewHTTPBase(srv.URL)
	ctx := context.Background()

	err := b.DriveStraight(ctx, 10, 50)
	if !errors.Is(err, ErrActuatorFault) || !strings.Contains(err.Error(), "wheel stalled") {
		t.Errorf("Expected rejected fault, got %v", err)
	}
	if _, err := b.DriveWheels(ctx, 0, -50, time.Second); !errors.Is(err, ErrActuatorFault) {
		t.Errorf("Expected ErrActuatorFault for 500, got %v", err)
	}
	v, err := b.BatteryVoltage(ctx)
	if err != nil || !floatEquals(v, 3.72) {
		t.Errorf("Expected 3.72V, got %v (%v)", v, err)
	}
}

func TestNewHTTPBase_HostDefaultsPort(t *testing.T) {
	b := NewHTTPBase("10.0.0.7")
	if b.BaseURL != "http://10.0.0.7:8000" {
		t.Errorf("Expected http://10.0.0.7:8000, got %s", b.BaseURL)
	}
	if b := NewHTTPBase("robot.local:9000"); b.BaseURL != "http://robot.local:9000" {
		t.Errorf("Expected explicit port kept, got %s", b.BaseURL)
	}
}

func TestSerialBase_Protocol(t *testing.T) {
	port := newFakePort(map[string][]string{
		"S,": {"boot ok", "DONE"},
		"W,": {"OK"},
		"X":  {"OK"},
		"H,": {"DONE"},
		"B":  {"B,3.91"},
	})
	b := NewSerialBase(port, testSerialConfig(), nil)
	ctx := context.Background()

	if err := b.DriveStraight(ctx, 24.3, 50); err != nil {
		t.Fatalf("DriveStraight: %v", err)
	}
	m, err := b.DriveWheels(ctx, 0, -50, 546*time.Millisecond)
	if err != nil {
		t.Fatalf("DriveWheels: %v", err)
	}
	if err := m.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := b.SetHeadAngle(ctx, 0); err != nil {
		t.Fatalf("SetHeadAngle: %v", err)
	}
	v, err := b.BatteryVoltage(ctx)
	if err != nil || !floatEquals(v, 3.91) {
		t.Errorf("Expected 3.91V, got %v (%v)", v, err)
	}

	want := []string{"S,24.3,50.0", "W,0.0,-50.0,546", "X", "H,0.00", "B"}
	written := port.Written()
	if len(written) != len(want) {
		t.Fatalf("Expected %v, got %v", want, written)
	}
	for i := range want {
		if written[i] != want[i] {
			t.Errorf("Line %d: expected %q, got %q", i, want[i], written[i])
		}
	}
}

func TestSerialBase_ErrReply(t *testing.T) {
	port := newFakePort(map[string][]string{"S,": {"ERR,bumper"}})
	b := NewSerialBase(port, testSerialConfig(), nil)

	err := b.DriveStraight(context.Background(), 10, 50)
	if !errors.Is(err, ErrActuatorFault) || !strings.Contains(err.Error(), "bumper") {
		t.Errorf("Expected fault mentioning bumper, got %v", err)
	}
}

func TestSerialBase_Timeout(t *testing.T) {
	port := newFakePort(nil)
	b := NewSerialBase(port, testSerialConfig(), nil)

	if err := b.Stop(context.Background()); !errors.Is(err, ErrActuatorFault) {
		t.Errorf("Expected ErrActuatorFault on timeout, got %v", err)
	}
}

func TestSerialBase_Closed(t *testing.T) {
	port := newFakePort(map[string][]string{"X": {"OK"}})
	b := NewSerialBase(port, testSerialConfig(), nil)
	b.Close()

	if err := b.Stop(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if !port.closed {
		t.Error("Expected port closed")
	}
}

func waitForWrite(t *testing.T, port *fakePort, line string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, w := range port.Written() {
			if w == line {
				return
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("%q never written, got %v", line, port.Written())
}

func TestSerialBase_StopDuringStraight(t *testing.T) {
	// The board acknowledges X at once and then ends the interrupted S.
	port := newFakePort(map[string][]string{"X": {"OK", "DONE"}})
	b := NewSerialBase(port, testSerialConfig(), nil)

	done := make(chan error, 1)
	go func() { done <- b.DriveStraight(context.Background(), 1000, 10) }()
	waitForWrite(t, port, "S,1000.0,10.0")

	start := time.Now()
	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Expected Stop not to wait for the straight, took %s", elapsed)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected interrupted straight to end cleanly, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("straight still waiting after stop")
	}

	want := []string{"S,1000.0,10.0", "X"}
	if got := port.Written(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestSerialBase_CancelledStraightSendsStop(t *testing.T) {
	port := newFakePort(map[string][]string{"X": {"OK"}})
	b := NewSerialBase(port, testSerialConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := b.DriveStraight(ctx, 24.3, 50)
	if !errors.Is(err, ErrActuatorFault) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected cancelled fault, got %v", err)
	}

	want := []string{"S,24.3,50.0", "X"}
	if got := port.Written(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestSerialBase_StaleReplyDropped(t *testing.T) {
	port := newFakePort(map[string][]string{"X": {"OK"}})
	b := NewSerialBase(port, testSerialConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	if err := b.DriveStraight(ctx, 24.3, 50); err == nil {
		t.Fatal("Expected cancelled straight to fail")
	}

	// The abandoned S finishes late; its DONE must not answer H.
	port.lines <- "DONE"
	err := b.SetHeadAngle(context.Background(), 0)
	if !errors.Is(err, ErrActuatorFault) || !strings.Contains(err.Error(), "no DONE") {
		t.Errorf("Expected H to time out, got %v", err)
	}
}

// pipeConn reads from a pipe and discards writes.
type pipeConn struct{ *io.PipeReader }

func (pipeConn) Write(p []byte) (int, error) { return len(p), nil }

func TestSerialPort_CloseReleasesReader(t *testing.T) {
	r, w := io.Pipe()
	sp := newSerialPort(pipeConn{r})

	go func() {
		for i := 0; i < 4*cap(sp.lines); i++ {
			if _, err := fmt.Fprintf(w, "line %d\n", i); err != nil {
				return
			}
		}
	}()

	deadline := time.Now().Add(time.Second)
	for len(sp.lines) < cap(sp.lines) && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if err := sp.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sp.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	// Only what was buffered before Close comes out, then the channel closes.
	n := 0
	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-sp.lines:
			if !ok {
				if n != cap(sp.lines) {
					t.Errorf("Expected %d buffered lines, got %d", cap(sp.lines), n)
				}
				return
			}
			n++
		case <-timeout:
			t.Fatal("reader still blocked after Close")
		}
	}
}

// blockingBase blocks DriveStraight until release is closed.
type blockingBase struct {
	*DryRun
	release chan struct{}
}

func (b *blockingBase) DriveStraight(ctx context.Context, distanceMM, speedMMPS float64) error {
	<-b.release
	return nil
}

func TestExclusive_RejectsConcurrent(t *testing.T) {
	base := &blockingBase{DryRun: NewDryRun(false, nil), release: make(chan struct{})}
	ex := NewExclusive(base)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- ex.DriveStraight(ctx, 10, 50) }()

	deadline := time.Now().Add(time.Second)
	for !ex.Busy() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if err := ex.SetHeadAngle(ctx, 0); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	if err := ex.Stop(ctx); err != nil {
		t.Errorf("Expected Stop to pass through, got %v", err)
	}

	close(base.release)
	if err := <-done; err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := ex.SetHeadAngle(ctx, 0); err != nil {
		t.Errorf("Expected port free after completion, got %v", err)
	}
}

func TestExclusive_MotionHoldsPort(t *testing.T) {
	ex := NewExclusive(NewDryRun(false, nil))
	ctx := context.Background()

	m, err := ex.DriveWheels(ctx, 0, -50, time.Hour)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := ex.DriveWheels(ctx, 0, -50, time.Second); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy during motion, got %v", err)
	}

	m.Cancel(ctx)
	deadline := time.Now().Add(time.Second)
	for ex.Busy() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ex.Busy() {
		t.Error("Expected port released after cancel")
	}
}

type closeErr struct {
	*DryRun
	err error
}

func (c *closeErr) Close() error { return c.err }

type headOnly struct {
	err error
}

func (h *headOnly) SetHeadAngle(ctx context.Context, rad float64) error { return nil }
func (h *headOnly) Close() error                                         { return h.err }

var _ io.Closer = (*headOnly)(nil)

func TestCompose_CloseAggregatesErrors(t *testing.T) {
	errDrive := errors.New("drive close")
	errHead := errors.New("head close")

	c := Compose(&closeErr{DryRun: NewDryRun(false, nil), err: errDrive}, &headOnly{err: errHead})
	err := c.Close()
	if !errors.Is(err, errDrive) || !errors.Is(err, errHead) {
		t.Errorf("Expected both close errors, got %v", err)
	}
}

func TestCompose_Routes(t *testing.T) {
	drive := NewDryRun(false, nil)
	head := NewDryRun(false, nil)
	c := Compose(drive, head)
	ctx := context.Background()

	c.DriveStraight(ctx, 10, 50)
	c.SetHeadAngle(ctx, 0.1)

	if n := len(drive.Calls()); n != 1 || drive.Calls()[0].Op != "straight" {
		t.Errorf("Expected one straight call on drive, got %v", drive.Calls())
	}
	if n := len(head.Calls()); n != 1 || head.Calls()[0].Op != "head" {
		t.Errorf("Expected one head call on head, got %v", head.Calls())
	}
}

func TestServoConfig_StepConversion(t *testing.T) {
	cfg := DefaultServoConfig()

	if got := cfg.RadiansToSteps(0); got != 2048 {
		t.Errorf("Expected center 2048, got %d", got)
	}
	if got := cfg.RadiansToSteps(math.Pi / 2); got != 3072 {
		t.Errorf("Expected 3072 at 90°, got %d", got)
	}
	if got := cfg.StepsToRadians(1024); !floatEquals(got, -math.Pi/2) {
		t.Errorf("Expected -π/2, got %v", got)
	}

	cfg.Inverted = true
	if got := cfg.RadiansToSteps(math.Pi / 2); got != 1024 {
		t.Errorf("Expected 1024 inverted, got %d", got)
	}
	if got := cfg.StepsToRadians(cfg.RadiansToSteps(0.3)); math.Abs(got-0.3) > 2*math.Pi/4096 {
		t.Errorf("Expected round trip near 0.3, got %v", got)
	}
}

func TestClampHeadAngle(t *testing.T) {
	if got := ClampHeadAngle(-2); got != MinHeadAngle {
		t.Errorf("Expected MinHeadAngle, got %v", got)
	}
	if got := ClampHeadAngle(2); got != MaxHeadAngle {
		t.Errorf("Expected MaxHeadAngle, got %v", got)
	}
	if got := ClampHeadAngle(0.1); got != 0.1 {
		t.Errorf("Expected 0.1, got %v", got)
	}
}

func TestDryRun_RecordsCalls(t *testing.T) {
	d := NewDryRun(false, nil)
	ctx := context.Background()

	if err := d.SetHeadAngle(ctx, MinHeadAngle-1); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := d.DriveStraight(ctx, 24.3, 50); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	m, err := d.DriveWheels(ctx, 0, -50, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !m.Wait(ctx, time.Second) || m.Err() != nil {
		t.Errorf("Expected timed motion to complete cleanly, err=%v", m.Err())
	}

	calls := d.Calls()
	if len(calls) != 3 {
		t.Fatalf("Expected 3 calls, got %v", calls)
	}
	if calls[0].Op != "head" || !floatEquals(calls[0].Args[0], MinHeadAngle) {
		t.Errorf("Expected clamped head angle, got %v", calls[0])
	}
	if calls[1].Op != "straight" || !floatEquals(calls[1].Args[0], 24.3) {
		t.Errorf("Unexpected straight call %v", calls[1])
	}
	if calls[2].Op != "wheels" || calls[2].Dur != 20*time.Millisecond {
		t.Errorf("Unexpected wheels call %v", calls[2])
	}

	if v, err := d.BatteryVoltage(ctx); err != nil || v <= 0 {
		t.Errorf("Expected battery reading, got %v %v", v, err)
	}
}

func TestDryRun_SimulatedStraightHonoursCancel(t *testing.T) {
	d := NewDryRun(true, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// 1000mm at 10mm/s would take 100s.
	err := d.DriveStraight(ctx, 1000, 10)
	if !errors.Is(err, ErrActuatorFault) || !errors.Is(err, context.Canceled) {
		t.Errorf("Expected actuator fault wrapping cancellation, got %v", err)
	}
}
