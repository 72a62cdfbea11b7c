// Package config loads the daemon configuration from YAML.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/ir-transmitter/internal/freq"
	"github.com/sweeney/ir-transmitter/internal/gpio"
	"github.com/sweeney/ir-transmitter/internal/transmitter"
)

// GPIO backends
const (
	BackendGPIOCDev = "gpiocdev"
	BackendRpio     = "rpio"
	BackendConsole  = "console"
)

// Run modes
const (
	ModeContinuous = "continuous"
	ModeOneShot    = "oneshot"
	ModeIdle       = "idle"
)

type Config struct {
	GPIO        GPIOConfig        `yaml:"gpio"`
	Transmitter TransmitterConfig `yaml:"transmitter"`
	Frequencies FrequencyConfig   `yaml:"frequencies"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	HTTP        HTTPConfig        `yaml:"http"`
}

type GPIOConfig struct {
	Backend string `yaml:"backend"`
	Chip    string `yaml:"chip"`
	Pin     int    `yaml:"pin"`
	Debug   bool   `yaml:"debug"`
}

type TransmitterConfig struct {
	Tick         time.Duration `yaml:"tick"`
	PulseWidth   uint32        `yaml:"pulse_width"`
	Frequency    int           `yaml:"frequency"`
	Continuous   bool          `yaml:"continuous"`
	Mode         string        `yaml:"mode"`
	OneShotDelay time.Duration `yaml:"oneshot_delay"`
}

type FrequencyConfig struct {
	// TickRateHz is optional. The rate always follows transmitter.tick; a
	// value here must agree with it.
	TickRateHz float64   `yaml:"tick_rate_hz"`
	Hz         []float64 `yaml:"hz"`
	// Ticks, if set, is used as-is and Hz is ignored.
	Ticks []uint32 `yaml:"ticks"`
}

type MQTTConfig struct {
	Broker    string        `yaml:"broker"`
	ClientID  string        `yaml:"client_id"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
//
// The 10us tick is the rate the default frequency table is laid out for.
// A Go ticker does not hold that rate on Linux: expect jitter and dropped
// ticks unless the tick is slowed down (20us still keeps the ten default
// frequencies distinct) or the loop runs on an isolated core with the rpio
// backend, whose writes do not need a syscall.
func Default() Config {
	return Config{
		GPIO: GPIOConfig{
			Backend: BackendGPIOCDev,
			Chip:    gpio.DefaultChip,
			Pin:     gpio.DefaultPin,
		},
		Transmitter: TransmitterConfig{
			Tick:         time.Second / freq.DefaultTickRateHz,
			PulseWidth:   transmitter.DefaultPulseWidth,
			Mode:         ModeOneShot,
			OneShotDelay: 500 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			ClientID:  "ir-transmitter",
			Heartbeat: 15 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Load reads path on top of Default and validates the result.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges and cross-field constraints.
func (c Config) Validate() error {
	switch c.GPIO.Backend {
	case BackendGPIOCDev, BackendRpio, BackendConsole:
	default:
		return fmt.Errorf("gpio.backend must be one of %s, %s, %s", BackendGPIOCDev, BackendRpio, BackendConsole)
	}
	if c.GPIO.Backend == BackendGPIOCDev && c.GPIO.Chip == "" {
		return fmt.Errorf("gpio.chip is required for the %s backend", BackendGPIOCDev)
	}
	if c.GPIO.Pin < 0 {
		return fmt.Errorf("gpio.pin must be >= 0")
	}

	if c.Transmitter.Tick <= 0 {
		return fmt.Errorf("transmitter.tick must be > 0")
	}
	switch c.Transmitter.Mode {
	case ModeContinuous, ModeOneShot, ModeIdle:
	default:
		return fmt.Errorf("transmitter.mode must be one of %s, %s, %s", ModeContinuous, ModeOneShot, ModeIdle)
	}
	if c.Transmitter.Mode == ModeOneShot && c.Transmitter.OneShotDelay <= 0 {
		return fmt.Errorf("transmitter.oneshot_delay must be > 0 in %s mode", ModeOneShot)
	}

	rate := c.TickRateHz()
	if f := c.Frequencies.TickRateHz; f != 0 && math.Abs(f-rate) > rate*1e-9 {
		return fmt.Errorf("frequencies.tick_rate_hz must match transmitter.tick (%v = %g Hz)", c.Transmitter.Tick, rate)
	}
	table, err := c.Frequencies.Table(rate)
	if err != nil {
		return fmt.Errorf("frequencies: %w", err)
	}
	if !table.Contains(c.Transmitter.Frequency) {
		return fmt.Errorf("transmitter.frequency %d out of range (%d frequencies)", c.Transmitter.Frequency, table.Len())
	}

	if c.MQTT.Heartbeat < 0 {
		return fmt.Errorf("mqtt.heartbeat must be >= 0")
	}
	if c.MQTT.Broker != "" && c.MQTT.ClientID == "" {
		return fmt.Errorf("mqtt.client_id is required when mqtt.broker is set")
	}
	return nil
}

// TickRateHz returns the tick rate implied by transmitter.tick, or 0 if the
// tick is not positive.
func (c Config) TickRateHz() float64 {
	if c.Transmitter.Tick <= 0 {
		return 0
	}
	return float64(time.Second) / float64(c.Transmitter.Tick)
}

// FrequencyTable resolves the frequency table at the configured tick rate.
func (c Config) FrequencyTable() (freq.Table, error) {
	return c.Frequencies.Table(c.TickRateHz())
}

// Table resolves the frequency table: explicit ticks, then Hz at the tick
// rate, then the default frequencies at the tick rate.
func (f FrequencyConfig) Table(tickRateHz float64) (freq.Table, error) {
	if len(f.Ticks) > 0 {
		t := freq.Table(f.Ticks)
		if err := t.Validate(); err != nil {
			return nil, err
		}
		return t, nil
	}

	if len(f.Hz) > 0 {
		return freq.FromHz(tickRateHz, f.Hz)
	}
	if tickRateHz == freq.DefaultTickRateHz {
		return freq.Default, nil
	}
	return freq.FromHz(tickRateHz, freq.DefaultHz)
}
