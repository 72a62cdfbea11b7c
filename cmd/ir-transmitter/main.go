// Command ir-transmitter drives an IR emitter on a GPIO pin with a square-wave
// pulse train at one of a fixed set of frequencies, and reports bursts to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/ir-transmitter/internal/config"
	"github.com/sweeney/ir-transmitter/internal/freq"
	"github.com/sweeney/ir-transmitter/internal/gpio"
	"github.com/sweeney/ir-transmitter/internal/mqtt"
	"github.com/sweeney/ir-transmitter/internal/status"
	"github.com/sweeney/ir-transmitter/internal/transmitter"
	"github.com/sweeney/ir-transmitter/internal/web"
)

// flagValues holds command-line overrides. Only flags that were set on the
// command line are applied on top of the config file.
type flagValues struct {
	backend    string
	chip       string
	pin        int
	debug      bool
	tick       time.Duration
	pulseWidth uint
	frequency  int
	continuous bool
	mode       string
	broker     string
	heartbeat  time.Duration
	httpAddr   string
}

func main() {
	def := config.Default()
	var v flagValues
	configPath := flag.String("config", "", "YAML config file (built-in defaults if empty)")
	flag.StringVar(&v.backend, "backend", def.GPIO.Backend, "GPIO backend: gpiocdev, rpio or console")
	flag.StringVar(&v.chip, "chip", def.GPIO.Chip, "GPIO chip for the gpiocdev backend")
	flag.IntVar(&v.pin, "pin", def.GPIO.Pin, "BCM pin number of the IR emitter")
	flag.BoolVar(&v.debug, "debug", false, "Log every output level change")
	flag.DurationVar(&v.tick, "tick", def.Transmitter.Tick, "Tick interval")
	flag.UintVar(&v.pulseWidth, "pulse-width", uint(def.Transmitter.PulseWidth), "Burst length in ticks")
	flag.IntVar(&v.frequency, "frequency", 0, "Frequency number")
	flag.BoolVar(&v.continuous, "continuous", false, "Start in continuous mode")
	flag.StringVar(&v.mode, "mode", def.Transmitter.Mode, "Run mode: continuous, oneshot or idle")
	flag.StringVar(&v.broker, "broker", "", "MQTT broker address (empty to disable)")
	flag.DurationVar(&v.heartbeat, "heartbeat", def.MQTT.Heartbeat, "Heartbeat interval (0 to disable)")
	flag.StringVar(&v.httpAddr, "http", def.HTTP.Addr, "HTTP status address (empty to disable)")
	dump := flag.Bool("dump", false, "Print one burst's waveform to stdout and exit")

	flag.Parse()

	cfg, err := loadConfig(*configPath, flag.CommandLine, v)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *dump {
		err = runDump(cfg)
	} else {
		err = run(cfg)
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// loadConfig reads the config file (if any), applies set flags and validates.
func loadConfig(path string, fs *flag.FlagSet, v flagValues) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.GPIO.Backend = v.backend
		case "chip":
			cfg.GPIO.Chip = v.chip
		case "pin":
			cfg.GPIO.Pin = v.pin
		case "debug":
			cfg.GPIO.Debug = v.debug
		case "tick":
			cfg.Transmitter.Tick = v.tick
		case "pulse-width":
			cfg.Transmitter.PulseWidth = uint32(v.pulseWidth)
		case "frequency":
			cfg.Transmitter.Frequency = v.frequency
		case "continuous":
			cfg.Transmitter.Continuous = v.continuous
		case "mode":
			cfg.Transmitter.Mode = v.mode
		case "broker":
			cfg.MQTT.Broker = v.broker
		case "heartbeat":
			cfg.MQTT.Heartbeat = v.heartbeat
		case "http":
			cfg.HTTP.Addr = v.httpAddr
		}
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func openOutput(cfg config.GPIOConfig) (gpio.Output, error) {
	switch cfg.Backend {
	case config.BackendGPIOCDev:
		out, err := gpio.NewRealOutput(cfg.Chip)
		if err != nil {
			return nil, err
		}
		return out, nil
	case config.BackendRpio:
		return gpio.NewRpioOutput(), nil
	case config.BackendConsole:
		return gpio.NewConsoleOutput(os.Stdout), nil
	}
	return nil, fmt.Errorf("unknown gpio backend %q", cfg.Backend)
}

// newTransmitter builds and initializes the state machine from cfg.
func newTransmitter(cfg config.Config, out transmitter.PinOutput, table freq.Table) (*transmitter.Transmitter, error) {
	tx := transmitter.New(cfg.GPIO.Pin, out, table)
	tx.SetPulseWidth(cfg.Transmitter.PulseWidth)
	tx.SetFrequencyNumber(uint16(cfg.Transmitter.Frequency))
	tx.SetDebug(cfg.GPIO.Debug)
	tx.SetContinuousMode(cfg.Transmitter.Continuous || cfg.Transmitter.Mode == config.ModeContinuous)
	if err := tx.Init(); err != nil {
		return nil, err
	}
	return tx, nil
}

func statusConfig(cfg config.Config, table freq.Table) status.Config {
	sc := status.Config{
		Backend:     cfg.GPIO.Backend,
		Pin:         cfg.GPIO.Pin,
		Tick:        cfg.Transmitter.Tick,
		Mode:        cfg.Transmitter.Mode,
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
	}
	rate := sc.TickRateHz()
	sc.FrequenciesHz = make([]float64, table.Len())
	for i := range table {
		sc.FrequenciesHz[i] = table.Hz(rate, i)
	}
	return sc
}

// Shortest tick a time.Ticker holds without noticeable jitter on Linux.
const minSteadyTick = 100 * time.Microsecond

// tickWarning returns a warning for ticks too short to hold steadily, or "".
func tickWarning(tick time.Duration) string {
	if tick >= minSteadyTick {
		return ""
	}
	return fmt.Sprintf("tick %v is shorter than a Go ticker holds steadily (%v); expect jitter and dropped ticks", tick, minSteadyTick)
}

func run(cfg config.Config) error {
	table, err := cfg.FrequencyTable()
	if err != nil {
		return fmt.Errorf("frequency table: %w", err)
	}

	// Initialize GPIO
	out, err := openOutput(cfg.GPIO)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer func() {
		if err := out.Close(); err != nil {
			log.Printf("gpio close: %v", err)
		}
	}()

	tx, err := newTransmitter(cfg, out, table)
	if err != nil {
		return fmt.Errorf("init transmitter: %w", err)
	}

	// Initialize MQTT
	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher, mqttStatus = p, p
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), statusConfig(cfg, table))
	tracker.Update(tx)
	tracker.SetMQTTConnected(mqttStatus.IsConnected())

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	cmds := make(chan command)
	done := make(chan struct{})
	defer close(done)

	if cfg.HTTP.Addr != "" {
		ctrl := &loopController{cmds: cmds, done: done, table: table}
		srv := web.New(cfg.HTTP.Addr, tracker, ctrl)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: backend=%s pin=%d tick=%v pulse_width=%d frequency=%d (%.0f Hz) mode=%s broker=%q",
		cfg.GPIO.Backend, cfg.GPIO.Pin, cfg.Transmitter.Tick, cfg.Transmitter.PulseWidth,
		cfg.Transmitter.Frequency, table.Hz(cfg.TickRateHz(), cfg.Transmitter.Frequency),
		cfg.Transmitter.Mode, cfg.MQTT.Broker)

	if w := tickWarning(cfg.Transmitter.Tick); w != "" {
		log.Printf("warning: %s", w)
	}
	ticker := time.NewTicker(cfg.Transmitter.Tick)
	defer ticker.Stop()

	l := &loop{
		tx:         tx,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		now:        time.Now,
		after:      time.After,
		tick:       ticker.C,
		cmds:       cmds,
		debug:      cfg.GPIO.Debug,
	}

	if cfg.MQTT.Heartbeat > 0 {
		hb := time.NewTicker(cfg.MQTT.Heartbeat)
		defer hb.Stop()
		l.heartbeat = hb.C
	}

	switch cfg.Transmitter.Mode {
	case config.ModeContinuous:
		tx.Run()
	case config.ModeOneShot:
		rearm := time.NewTicker(cfg.Transmitter.OneShotDelay)
		defer rearm.Stop()
		l.oneshot = rearm.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	l.sig = sigCh

	return l.run()
}
