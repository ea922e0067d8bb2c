package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Instrument  InstrumentConfig  `yaml:"instrument"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Display     DisplayConfig     `yaml:"display"`
	Mock        MockConfig        `yaml:"mock"`
	Record      RecordConfig      `yaml:"record"`
	Stream      StreamConfig      `yaml:"stream"`
}

// InstrumentConfig contains the instrument connection settings.
type InstrumentConfig struct {
	Resource string        `yaml:"resource"`  // VISA resource string
	Timeout  time.Duration `yaml:"timeout"`   // I/O timeout per command/query
	BaudRate int           `yaml:"baud_rate"` // Only used for ASRL resources
}

// AcquisitionConfig contains the logging parameters entered by the user.
type AcquisitionConfig struct {
	Points            int           `yaml:"points"`
	IntegrationTime   float64       `yaml:"integration_time"`
	TimeUnit          string        `yaml:"time_unit"`          // US, MS or S
	LoopDelay         float64       `yaml:"loop_delay"`         // Seconds between cycles
	Simulate          bool          `yaml:"simulate"`           // Use synthetic data, no instrument I/O
	PollInterval      time.Duration `yaml:"poll_interval"`      // *OPC? polling interval
	CompletionTimeout time.Duration `yaml:"completion_timeout"` // 0 waits forever
	BatchBuffer       int           `yaml:"batch_buffer"`       // Batches queued towards the UI
}

// DisplayConfig contains plot settings.
type DisplayConfig struct {
	HistorySize    int           `yaml:"history_size"`     // Scroll plot capacity
	TickInterval   time.Duration `yaml:"tick_interval"`    // Scroll plot refresh period
	MaxTracePoints int           `yaml:"max_trace_points"` // Decimation limit for the trace plot
}

// MockConfig contains simulated instrument configuration.
type MockConfig struct {
	MaxValue int `yaml:"max_value"` // Samples are drawn from [0, MaxValue]
}

// RecordConfig contains SQLite recording settings.
type RecordConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StreamConfig contains websocket feed settings.
type StreamConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Debug   bool   `yaml:"debug"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Instrument: InstrumentConfig{
			Resource: "TCPIP0::169.254.241.203::inst0::INSTR",
			Timeout:  5 * time.Second,
			BaudRate: 115200,
		},
		Acquisition: AcquisitionConfig{
			Points:            100,
			IntegrationTime:   10,
			TimeUnit:          "MS",
			LoopDelay:         0.1,
			Simulate:          false,
			PollInterval:      10 * time.Millisecond,
			CompletionTimeout: 30 * time.Second,
			BatchBuffer:       4,
		},
		Display: DisplayConfig{
			HistorySize:    100,
			TickInterval:   10 * time.Millisecond,
			MaxTracePoints: 2000,
		},
		Mock: MockConfig{
			MaxValue: 10,
		},
		Record: RecordConfig{
			Enabled: false,
			Path:    "opmlog.db",
		},
		Stream: StreamConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8765",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills zero values that have no meaningful zero.
// LoopDelay, CompletionTimeout and the boolean switches keep their zero values.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Instrument.Resource == "" {
		c.Instrument.Resource = def.Instrument.Resource
	}
	if c.Instrument.Timeout == 0 {
		c.Instrument.Timeout = def.Instrument.Timeout
	}
	if c.Instrument.BaudRate == 0 {
		c.Instrument.BaudRate = def.Instrument.BaudRate
	}

	if c.Acquisition.Points == 0 {
		c.Acquisition.Points = def.Acquisition.Points
	}
	if c.Acquisition.IntegrationTime == 0 {
		c.Acquisition.IntegrationTime = def.Acquisition.IntegrationTime
	}
	if c.Acquisition.TimeUnit == "" {
		c.Acquisition.TimeUnit = def.Acquisition.TimeUnit
	}
	if c.Acquisition.PollInterval == 0 {
		c.Acquisition.PollInterval = def.Acquisition.PollInterval
	}
	if c.Acquisition.BatchBuffer == 0 {
		c.Acquisition.BatchBuffer = def.Acquisition.BatchBuffer
	}

	if c.Display.HistorySize == 0 {
		c.Display.HistorySize = def.Display.HistorySize
	}
	if c.Display.TickInterval == 0 {
		c.Display.TickInterval = def.Display.TickInterval
	}
	if c.Display.MaxTracePoints == 0 {
		c.Display.MaxTracePoints = def.Display.MaxTracePoints
	}

	if c.Mock.MaxValue <= 0 {
		c.Mock.MaxValue = def.Mock.MaxValue
	}

	if c.Record.Path == "" {
		c.Record.Path = def.Record.Path
	}
	if c.Stream.Addr == "" {
		c.Stream.Addr = def.Stream.Addr
	}
}
