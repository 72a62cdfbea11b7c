package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/ir-transmitter/internal/config"
	"github.com/sweeney/ir-transmitter/internal/freq"
	"github.com/sweeney/ir-transmitter/internal/gpio"
	"github.com/sweeney/ir-transmitter/internal/mqtt"
	"github.com/sweeney/ir-transmitter/internal/status"
	"github.com/sweeney/ir-transmitter/internal/transmitter"
	"github.com/sweeney/ir-transmitter/internal/web"
)

var testStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// testTable has short periods so whole bursts fit in a few dozen ticks.
var testTable = freq.Table{10, 20}

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from the loop goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// harness runs a loop against fakes with every input channel under test control.
type harness struct {
	t         *testing.T
	l         *loop
	out       *gpio.FakeOutput
	pub       *mqtt.FakePublisher
	tracker   *status.Tracker
	ctrl      *loopController
	tick      chan time.Time
	cmds      chan command
	oneshot   chan time.Time
	heartbeat chan time.Time
	sig       chan os.Signal
	timeout   chan time.Time
	done      chan struct{}
	errCh     chan error
}

func newHarness(t *testing.T, pulseWidth uint32) *harness {
	t.Helper()
	out := gpio.NewFakeOutput()
	tx := transmitter.New(18, out, testTable)
	tx.SetPulseWidth(pulseWidth)
	if err := tx.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	h := &harness{
		t:         t,
		out:       out,
		pub:       mqtt.NewFakePublisher(),
		tracker:   status.NewTracker(testStart, status.Config{Tick: 10 * time.Microsecond}),
		tick:      make(chan time.Time),
		cmds:      make(chan command),
		oneshot:   make(chan time.Time),
		heartbeat: make(chan time.Time),
		sig:       make(chan os.Signal, 1),
		timeout:   make(chan time.Time),
		done:      make(chan struct{}),
		errCh:     make(chan error, 1),
	}
	h.ctrl = &loopController{cmds: h.cmds, done: h.done, table: testTable}
	h.l = &loop{
		tx:         tx,
		publisher:  h.pub,
		mqttStatus: h.pub,
		tracker:    h.tracker,
		now:        fakeClock(testStart, time.Millisecond),
		after:      func(time.Duration) <-chan time.Time { return h.timeout },
		tick:       h.tick,
		cmds:       h.cmds,
		oneshot:    h.oneshot,
		heartbeat:  h.heartbeat,
		sig:        h.sig,
	}
	return h
}

func (h *harness) start() {
	go func() {
		h.errCh <- h.l.run()
	}()
}

func (h *harness) ticks(n int) {
	for i := 0; i < n; i++ {
		h.tick <- time.Time{}
	}
}

// stop delivers s and keeps ticking until the loop returns.
func (h *harness) stop(s os.Signal) error {
	h.t.Helper()
	h.sig <- s
	for i := 0; i < 100000; i++ {
		select {
		case err := <-h.errCh:
			close(h.done)
			return err
		case h.tick <- time.Time{}:
		}
	}
	h.t.Fatal("loop did not return after signal")
	return nil
}

// Ticks for one burst at period 10 and pulse width 25, counted from Init:
// one tick to Wait, one to start, 26 in the burst.
const burstTicks = 28

func TestRunLoopIdleNoEvents(t *testing.T) {
	h := newHarness(t, 25)
	h.start()
	h.ticks(5)

	if err := h.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if len(h.pub.Events) != 0 {
		t.Errorf("expected 0 burst events, got %d", len(h.pub.Events))
	}
	if len(h.pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(h.pub.SystemEvents))
	}
	ev := h.pub.SystemEvents[0]
	if ev.Event != "SHUTDOWN" || ev.Reason != "SIGTERM" || !ev.Retained {
		t.Errorf("unexpected shutdown event: %+v", ev)
	}
	if h.l.tx.State() != transmitter.StateWait {
		t.Errorf("State: got %s, want WAIT", h.l.tx.State())
	}
}

func TestRunLoopShutdownPayload(t *testing.T) {
	h := newHarness(t, 25)
	h.start()
	if err := h.stop(syscall.SIGINT); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(h.pub.SystemEvents[0].RawPayload, &sj); err != nil {
		t.Fatalf("invalid shutdown payload: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != "SIGINT" {
		t.Errorf("event/reason: got %q/%q", sj.Status.Event, sj.Status.Reason)
	}
}

func TestRunLoopOneShotBurst(t *testing.T) {
	h := newHarness(t, 25)
	h.l.tx.Run()
	h.start()
	h.ticks(burstTicks + 5)

	if err := h.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	types := h.pub.EventTypes()
	if len(types) != 2 || types[0] != transmitter.EventBurstStart || types[1] != transmitter.EventBurstEnd {
		t.Fatalf("unexpected events: %v", types)
	}
	start, end := h.pub.Events[0], h.pub.Events[1]
	if !start.Timestamp.Equal(testStart) || !end.Timestamp.Equal(testStart.Add(time.Millisecond)) {
		t.Errorf("timestamps: got %v and %v", start.Timestamp, end.Timestamp)
	}
	if start.Period != 10 || end.Timer != 26 {
		t.Errorf("start period %d, end timer %d", start.Period, end.Timer)
	}
	if got := h.out.Level(18); got != transmitter.Low {
		t.Errorf("output after burst: got %s, want LOW", got)
	}

	snap := h.tracker.Snapshot()
	if snap.Counts.BurstsCompleted != 1 || snap.Running {
		t.Errorf("tracker not updated after burst: %+v", snap)
	}
}

func TestRunLoopShutdownFinishesBurst(t *testing.T) {
	h := newHarness(t, 25)
	h.l.tx.Run()
	h.start()
	h.ticks(10)

	if err := h.stop(syscall.SIGINT); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	types := h.pub.EventTypes()
	if len(types) != 2 || types[1] != transmitter.EventBurstEnd {
		t.Fatalf("burst should complete before shutdown, got %v", types)
	}
	if h.l.tx.State() != transmitter.StateWait {
		t.Errorf("State: got %s, want WAIT", h.l.tx.State())
	}
	if got := h.out.Level(18); got != transmitter.Low {
		t.Errorf("output at shutdown: got %s, want LOW", got)
	}
	if h.pub.SystemEvents[0].Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN, got %q", h.pub.SystemEvents[0].Event)
	}
}

func TestRunLoopShutdownStopsContinuous(t *testing.T) {
	h := newHarness(t, 25)
	h.l.tx.SetContinuousMode(true)
	h.l.tx.Run()
	h.start()
	// Into the second burst.
	h.ticks(burstTicks + 5)

	if err := h.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	c := h.l.tx.Counts()
	if c.BurstsStarted != 2 || c.BurstsCompleted != 2 {
		t.Errorf("expected 2 complete bursts, got %+v", c)
	}
	if h.l.tx.ContinuousMode() || h.l.tx.Running() {
		t.Error("transmitter should be stopped after shutdown")
	}
}

func TestRunLoopShutdownDrainTimeout(t *testing.T) {
	h := newHarness(t, 20000)
	h.l.tx.Run()
	h.start()
	h.ticks(5)

	close(h.timeout)
	if err := h.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if h.l.tx.Counts().BurstsCompleted != 0 {
		t.Error("burst should not have completed before the timeout")
	}
	if len(h.pub.SystemEvents) != 1 || h.pub.SystemEvents[0].Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN after timeout, got %+v", h.pub.SystemEvents)
	}
}

func TestRunLoopOneShotRearm(t *testing.T) {
	h := newHarness(t, 25)
	h.start()
	h.ticks(1)

	h.oneshot <- time.Time{}
	h.ticks(burstTicks)
	// Idle again: re-armed.
	h.oneshot <- time.Time{}
	h.ticks(3)
	// Mid-burst: ignored.
	h.oneshot <- time.Time{}
	h.ticks(burstTicks)

	if err := h.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	c := h.l.tx.Counts()
	if c.BurstsStarted != 2 || c.BurstsCompleted != 2 {
		t.Errorf("expected 2 bursts, got %+v", c)
	}
}

func TestRunLoopCommands(t *testing.T) {
	h := newHarness(t, 25)
	h.start()

	if err := h.ctrl.SetFrequency(1); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}
	if got := h.tracker.Snapshot().Frequency; got != 1 {
		t.Errorf("tracker Frequency: got %d, want 1", got)
	}
	if err := h.ctrl.SetContinuous(true); err != nil {
		t.Fatalf("SetContinuous: %v", err)
	}
	if err := h.ctrl.SetContinuous(false); err != nil {
		t.Fatalf("SetContinuous: %v", err)
	}
	if err := h.ctrl.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !h.tracker.Snapshot().Running {
		t.Error("tracker should show Running after Run")
	}
	h.ticks(3)

	if err := h.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if len(h.pub.Events) == 0 {
		t.Fatal("expected a burst")
	}
	if ev := h.pub.Events[0]; ev.Frequency != 1 || ev.Period != 20 {
		t.Errorf("burst used frequency %d period %d, want 1/20", ev.Frequency, ev.Period)
	}
	if h.l.tx.ContinuousMode() {
		t.Error("continuous mode should be off")
	}
}

func TestControllerRejectsOutOfRange(t *testing.T) {
	ctrl := &loopController{table: testTable}
	for _, n := range []int{-1, 2, 100} {
		err := ctrl.SetFrequency(n)
		if !errors.Is(err, web.ErrInvalid) {
			t.Errorf("SetFrequency(%d): got %v, want ErrInvalid", n, err)
		}
	}
}

func TestControllerStopped(t *testing.T) {
	done := make(chan struct{})
	close(done)
	ctrl := &loopController{cmds: make(chan command), done: done, table: testTable}

	if err := ctrl.Run(); !errors.Is(err, errStopped) {
		t.Errorf("Run after stop: got %v, want errStopped", err)
	}
	if err := ctrl.SetFrequency(0); !errors.Is(err, errStopped) {
		t.Errorf("SetFrequency after stop: got %v, want errStopped", err)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	h := newHarness(t, 25)
	h.pub.Connected = true
	h.start()

	h.heartbeat <- time.Time{}
	if err := h.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if len(h.pub.SystemEvents) != 2 {
		t.Fatalf("expected heartbeat and shutdown, got %d system events", len(h.pub.SystemEvents))
	}
	hb := h.pub.SystemEvents[0]
	if hb.Event != "HEARTBEAT" || !hb.Retained {
		t.Errorf("unexpected heartbeat: %+v", hb)
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(hb.RawPayload, &sj); err != nil {
		t.Fatalf("invalid heartbeat payload: %v", err)
	}
	if sj.Status.Event != "HEARTBEAT" || !sj.Status.MQTT.Connected {
		t.Errorf("unexpected heartbeat status: %+v", sj.Status)
	}
}

func TestRunLoopPublishError(t *testing.T) {
	h := newHarness(t, 25)
	h.pub.PublishError = errors.New("broker down")
	h.l.tx.Run()
	h.start()
	h.ticks(burstTicks)

	if err := h.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if h.l.tx.Counts().BurstsCompleted != 1 {
		t.Error("publish errors must not stop the burst")
	}
}

func TestRunLoopWriteErrors(t *testing.T) {
	h := newHarness(t, 25)
	h.out.WriteError = errors.New("line gone")
	h.l.tx.Run()
	h.start()
	h.ticks(burstTicks)

	if err := h.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	c := h.l.tx.Counts()
	if c.BurstsCompleted != 1 {
		t.Errorf("write errors must not stop the burst, got %+v", c)
	}
	if c.WriteErrors != c.Edges {
		t.Errorf("every write should have failed: %+v", c)
	}
	if h.l.writeErrors != c.WriteErrors {
		t.Errorf("loop saw %d write errors, want %d", h.l.writeErrors, c.WriteErrors)
	}
	if h.tracker.Snapshot().Counts.WriteErrors != c.WriteErrors {
		t.Error("tracker should report write errors")
	}
}

func TestDumpBurst(t *testing.T) {
	tx := transmitter.New(18, gpio.NewFakeOutput(), testTable)
	tx.SetPulseWidth(25)
	if err := tx.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var buf bytes.Buffer
	if err := dumpBurst(&buf, tx, 100000); err != nil {
		t.Fatalf("dumpBurst: %v", err)
	}

	want := "------____------____------\n" +
		"frequency 0: period 10 ticks (10000 Hz), burst 26 ticks, 6 edges\n"
	if buf.String() != want {
		t.Errorf("dump:\n got %q\nwant %q", buf.String(), want)
	}
	if tx.Running() {
		t.Error("transmitter should be idle after the dump")
	}
}

func TestDumpBurstWraps(t *testing.T) {
	tx := transmitter.New(18, gpio.NewFakeOutput(), testTable)
	tx.SetPulseWidth(150)
	if err := tx.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var buf bytes.Buffer
	if err := dumpBurst(&buf, tx, 100000); err != nil {
		t.Fatalf("dumpBurst: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 2 waveform lines and a summary, got %d lines", len(lines))
	}
	if len(lines[0]) != dumpWidth || len(lines[1]) != 51 {
		t.Errorf("line lengths: got %d and %d", len(lines[0]), len(lines[1]))
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := loadConfig("", fs, flagValues{})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.GPIO.Backend != config.BackendGPIOCDev || cfg.GPIO.Pin != gpio.DefaultPin {
		t.Errorf("unexpected defaults: %+v", cfg.GPIO)
	}
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "gpio:\n  pin: 5\n  backend: console\ntransmitter:\n  pulse_width: 1000\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var v flagValues
	fs.IntVar(&v.pin, "pin", 0, "")
	fs.StringVar(&v.mode, "mode", "", "")
	fs.StringVar(&v.backend, "backend", "rpio", "")
	if err := fs.Parse([]string{"-pin", "23", "-mode", "continuous"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path, fs, v)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.GPIO.Pin != 23 {
		t.Errorf("Pin: got %d, want 23 from flag", cfg.GPIO.Pin)
	}
	if cfg.Transmitter.Mode != config.ModeContinuous {
		t.Errorf("Mode: got %q, want continuous from flag", cfg.Transmitter.Mode)
	}
	if cfg.GPIO.Backend != config.BackendConsole {
		t.Errorf("Backend: got %q, unset flag must not override the file", cfg.GPIO.Backend)
	}
	if cfg.Transmitter.PulseWidth != 1000 {
		t.Errorf("PulseWidth: got %d, want 1000 from file", cfg.Transmitter.PulseWidth)
	}
}

func TestLoadConfigInvalidFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var v flagValues
	fs.IntVar(&v.frequency, "frequency", 0, "")
	if err := fs.Parse([]string{"-frequency", "10"}); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig("", fs, v); err == nil {
		t.Error("expected error for out-of-range frequency")
	}
}

func TestLoadConfigTickFlagRescalesTable(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var v flagValues
	fs.DurationVar(&v.tick, "tick", 0, "")
	fs.StringVar(&v.backend, "backend", "", "")
	if err := fs.Parse([]string{"-tick", "20us", "-backend", "console"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig("", fs, v)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	table, err := cfg.FrequencyTable()
	if err != nil {
		t.Fatalf("FrequencyTable: %v", err)
	}
	if hz := table.Hz(cfg.TickRateHz(), 2); hz != 2000 {
		t.Errorf("frequency 2: got %.1f Hz, want 2000", hz)
	}

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	fs.DurationVar(&v.tick, "tick", 0, "")
	if err := fs.Parse([]string{"-tick", "1ms"}); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig("", fs, v); err == nil {
		t.Error("expected error: default frequencies do not fit a 1ms tick")
	}
}

func TestTickWarning(t *testing.T) {
	if w := tickWarning(config.Default().Transmitter.Tick); !strings.Contains(w, "10µs") {
		t.Errorf("default tick: got %q, want a warning naming 10µs", w)
	}
	if w := tickWarning(time.Millisecond); w != "" {
		t.Errorf("1ms tick: got %q, want no warning", w)
	}
	if w := tickWarning(minSteadyTick); w != "" {
		t.Errorf("%v tick: got %q, want no warning", minSteadyTick, w)
	}
}

func TestNewTransmitter(t *testing.T) {
	cfg := config.Default()
	cfg.GPIO.Pin = 23
	cfg.Transmitter.Frequency = 3
	cfg.Transmitter.Mode = config.ModeContinuous
	out := gpio.NewFakeOutput()

	tx, err := newTransmitter(cfg, out, freq.Default)
	if err != nil {
		t.Fatalf("newTransmitter: %v", err)
	}
	if !tx.ContinuousMode() {
		t.Error("continuous mode should be on in continuous run mode")
	}
	if tx.FrequencyNumber() != 3 || tx.Period() != 44 {
		t.Errorf("frequency %d period %d, want 3/44", tx.FrequencyNumber(), tx.Period())
	}
	if len(out.Configured) != 1 || out.Configured[0] != 23 {
		t.Errorf("Configured: got %v, want [23]", out.Configured)
	}
}

func TestNewTransmitterInitError(t *testing.T) {
	out := gpio.NewFakeOutput()
	out.InitError = errors.New("no chip")
	if _, err := newTransmitter(config.Default(), out, freq.Default); err == nil {
		t.Error("expected init error")
	}
}

func TestStatusConfig(t *testing.T) {
	sc := statusConfig(config.Default(), freq.Default)
	if len(sc.FrequenciesHz) != len(freq.Default) {
		t.Fatalf("FrequenciesHz: got %d entries", len(sc.FrequenciesHz))
	}
	if sc.FrequenciesHz[2] != 2000 {
		t.Errorf("FrequenciesHz[2]: got %v, want 2000", sc.FrequenciesHz[2])
	}
	if sc.HeartbeatMs != 900000 {
		t.Errorf("HeartbeatMs: got %d", sc.HeartbeatMs)
	}
}

func TestOpenOutputConsole(t *testing.T) {
	out, err := openOutput(config.GPIOConfig{Backend: config.BackendConsole})
	if err != nil {
		t.Fatalf("openOutput: %v", err)
	}
	if _, ok := out.(*gpio.ConsoleOutput); !ok {
		t.Errorf("got %T, want *gpio.ConsoleOutput", out)
	}
	if _, err := openOutput(config.GPIOConfig{Backend: "serial"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestSignalName(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "hangup"},
	}
	for _, tt := range tests {
		if got := signalName(tt.sig); got != tt.want {
			t.Errorf("signalName(%v): got %q, want %q", tt.sig, got, tt.want)
		}
	}
}
