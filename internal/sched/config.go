package sched

import (
	"fmt"
	"os"

	yaml "github.com/goccy/go-yaml"
)

// Tick modes.
const (
	TickFixed    = "fixed"    // SysTick reloads every tick
	TickTickless = "tickless" // SysTick is reprogrammed to the next release
)

// Release tracker policies.
const (
	ReleaseQueueName     = "queue"
	ReleaseCountdownName = "countdown"
)

// Priorities are the exception priorities, ARMv7-M encoding.
type Priorities struct {
	SysTick uint8 `yaml:"systick"`
	SVCall  uint8 `yaml:"svcall"`
	PendSV  uint8 `yaml:"pendsv"`
}

// TaskConfig describes one task slot of the simulated board.
type TaskConfig struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`   // accel, gyro, led or busy
	Period uint32 `yaml:"period"` // in scheduler units
	Work   int    `yaml:"work"`   // instructions per period for busy tasks
}

// Config mirrors config.yml.
type Config struct {
	CyclesPerTick int          `yaml:"cycles_per_tick"` // 1000 (by default)
	TicksPerUnit  int          `yaml:"ticks_per_unit"`  // 1 (by default)
	TickMode      string       `yaml:"tick_mode"`       // fixed (by default)
	Release       string       `yaml:"release"`         // queue (by default)
	Overrun       string       `yaml:"overrun"`         // drop (by default)
	EventBuffer   int          `yaml:"event_buffer"`    // 1024 (by default)
	Priorities    Priorities   `yaml:"priorities"`
	Tasks         []TaskConfig `yaml:"tasks"`
}

// DefaultConfig is the three-task board: gyro, accelerometer and LED strobe.
func DefaultConfig() Config {
	return Config{
		CyclesPerTick: 1000,
		TicksPerUnit:  1,
		TickMode:      TickFixed,
		Release:       ReleaseQueueName,
		Overrun:       OverrunDrop.String(),
		EventBuffer:   1024,
		Priorities: Priorities{
			SysTick: 0x40,
			SVCall:  0x80,
			PendSV:  0xF0,
		},
		Tasks: []TaskConfig{
			{Name: "gyro", Kind: "gyro", Period: 5},
			{Name: "accel", Kind: "accel", Period: 11},
			{Name: "leds", Kind: "led", Period: 21},
		},
	}
}

// Load reads YAML over the defaults; empty path = defaults only.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("%w: %v", ErrBadConfig, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and reports decoding errors.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}
	cfg.clamp()
	return cfg, nil
}

// sanity clamps
func (c *Config) clamp() {
	def := DefaultConfig()
	if c.CyclesPerTick <= 0 {
		c.CyclesPerTick = def.CyclesPerTick
	}
	if c.TicksPerUnit <= 0 {
		c.TicksPerUnit = def.TicksPerUnit
	}
	if c.EventBuffer < 0 {
		c.EventBuffer = def.EventBuffer
	}
	if c.TickMode == "" {
		c.TickMode = def.TickMode
	}
	if c.Release == "" {
		c.Release = def.Release
	}
	if c.Overrun == "" {
		c.Overrun = def.Overrun
	}
}

// Validate rejects configurations the kernel cannot run correctly. The
// exception priorities must make SysTick strictly more urgent than both
// SVCall and PendSV, and non-zero so that BASEPRI can mask it.
func (c Config) Validate() error {
	switch c.TickMode {
	case TickFixed, TickTickless:
	default:
		return fmt.Errorf("%w: tick_mode %q", ErrBadConfig, c.TickMode)
	}
	switch c.Release {
	case ReleaseQueueName, ReleaseCountdownName:
	default:
		return fmt.Errorf("%w: release %q", ErrBadConfig, c.Release)
	}
	if _, err := ParseOverrun(c.Overrun); err != nil {
		return err
	}
	if c.CyclesPerTick <= 0 || c.CyclesPerTick > 1<<24-1 {
		return fmt.Errorf("%w: cycles_per_tick %d", ErrBadConfig, c.CyclesPerTick)
	}

	p := c.Priorities
	if p.SysTick == 0 || p.SysTick >= p.SVCall || p.SysTick >= p.PendSV {
		return fmt.Errorf("%w: systick=%#x svcall=%#x pendsv=%#x", ErrPriorityOrder, p.SysTick, p.SVCall, p.PendSV)
	}
	if p.SVCall > p.PendSV {
		return fmt.Errorf("%w: svcall=%#x less urgent than pendsv=%#x", ErrPriorityOrder, p.SVCall, p.PendSV)
	}

	if len(c.Tasks) > MaxTasks {
		return fmt.Errorf("%w: %d tasks > %d", ErrTooManyTasks, len(c.Tasks), MaxTasks)
	}
	for _, t := range c.Tasks {
		if t.Period == 0 {
			return fmt.Errorf("%w: %s", ErrZeroPeriod, t.Name)
		}
	}
	return nil
}

// ParseOverrun maps a config string to an OverrunPolicy.
func ParseOverrun(s string) (OverrunPolicy, error) {
	switch s {
	case "queue":
		return OverrunQueue, nil
	case "drop":
		return OverrunDrop, nil
	default:
		return OverrunQueue, fmt.Errorf("%w: overrun %q", ErrBadConfig, s)
	}
}

// NewTracker builds the release tracker the config selects.
func (c Config) NewTracker() (ReleaseTracker, error) {
	switch c.Release {
	case ReleaseQueueName:
		p, err := ParseOverrun(c.Overrun)
		if err != nil {
			return nil, err
		}
		return NewReleaseQueue(uint32(c.TicksPerUnit), p), nil
	case ReleaseCountdownName:
		return NewCountdown(uint32(c.TicksPerUnit)), nil
	default:
		return nil, fmt.Errorf("%w: release %q", ErrBadConfig, c.Release)
	}
}
