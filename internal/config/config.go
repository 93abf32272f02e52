package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Capture       CaptureConfig       `yaml:"capture"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// CaptureConfig selects and parameterises the capture device
type CaptureConfig struct {
	Driver        string `yaml:"driver"`         // "file" or "portaudio"
	FilePath      string `yaml:"file_path"`      // WAV source for the file driver
	SampleRate    int    `yaml:"sample_rate"`    // portaudio only
	Channels      int    `yaml:"channels"`       // portaudio only
	ChunkInterval int    `yaml:"chunk_interval"` // milliseconds
	Realtime      bool   `yaml:"realtime"`       // file driver paces chunks
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	FieldName     string `yaml:"field_name"`
	FileName      string `yaml:"file_name"`
}

// PipelineConfig contains orchestration parameters
type PipelineConfig struct {
	SubmitTimeout int `yaml:"submit_timeout"` // seconds, 0 disables
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Default returns the configuration used for keys absent from the file
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Driver:        "portaudio",
			SampleRate:    44100,
			Channels:      1,
			ChunkInterval: 100,
		},
		Transcription: TranscriptionConfig{
			Endpoint:      "http://localhost:5000/transcribe",
			Timeout:       30,
			MaxRetries:    0,
			MaxConcurrent: 4,
			FieldName:     "audio",
			FileName:      "recording.wav",
		},
		Pipeline: PipelineConfig{
			SubmitTimeout: 60,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	switch c.Driver {
	case "file":
		if c.FilePath == "" {
			return fmt.Errorf("file_path cannot be empty for the file driver")
		}
	case "portaudio":
		if c.SampleRate < 8000 || c.SampleRate > 192000 {
			return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", c.SampleRate)
		}
		if c.Channels < 1 || c.Channels > 8 {
			return fmt.Errorf("channels must be between 1 and 8, got %d", c.Channels)
		}
	default:
		return fmt.Errorf("driver must be 'file' or 'portaudio', got '%s'", c.Driver)
	}

	if c.ChunkInterval < 10 || c.ChunkInterval > 5000 {
		return fmt.Errorf("chunk_interval must be between 10 and 5000 ms, got %d", c.ChunkInterval)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	if t.FieldName == "" {
		return fmt.Errorf("field_name cannot be empty")
	}

	if t.FileName == "" {
		return fmt.Errorf("file_name cannot be empty")
	}

	return nil
}

// Validate validates pipeline configuration
func (p *PipelineConfig) Validate() error {
	if p.SubmitTimeout < 0 {
		return fmt.Errorf("submit_timeout cannot be negative, got %d", p.SubmitTimeout)
	}
	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout/stderr is treated as a file path

	return nil
}

// GetChunkInterval returns the chunk delivery interval as a time.Duration
func (c *CaptureConfig) GetChunkInterval() time.Duration {
	return time.Duration(c.ChunkInterval) * time.Millisecond
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetSubmitTimeout returns the submission timeout as a time.Duration
func (p *PipelineConfig) GetSubmitTimeout() time.Duration {
	return time.Duration(p.SubmitTimeout) * time.Second
}
