package config

import (
	"fmt"
	"os"
	"time"

	json "github.com/json-iterator/go"
)

type (
	NET struct {
		// ReadBufferSize is the fixed capacity of a connection's read buffer. A whole request
		// (request line, headers and body) must fit into it, otherwise it's rejected.
		ReadBufferSize int
		// WriteBufferSize is the fixed capacity of the buffer holding the status line and
		// headers. File contents never go through it.
		WriteBufferSize int
		// MaxPathLength bounds the filesystem path built from the document root and the
		// request target. Longer paths are truncated.
		MaxPathLength int
		// Backlog is passed to listen(2).
		Backlog int
		// MaxEvents is the number of readiness events fetched by a single wait.
		MaxEvents int
		// MaxConns limits the number of simultaneously served connections. Connections
		// accepted above the limit are answered with a short message and closed.
		MaxConns int
		// PollInterruptPeriod controls how often the readiness wait is interrupted in order
		// to check whether it's time to stop.
		PollInterruptPeriod time.Duration
	}

	Workers struct {
		// Number of workers processing ready connections.
		Number int
		// QueueSize is the maximal number of ready connections waiting for a worker. Connections
		// that don't fit into the queue are closed.
		QueueSize int
	}
)

// Config holds settings used across the server, mainly limits and pre-allocations.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to initialize the
// config manually, because most likely this will result in ambiguous errors.
type Config struct {
	// Root is the document root. Request targets are appended to it as is.
	Root    string
	NET     NET
	Workers Workers
}

// Default returns default config.
func Default() *Config {
	return &Config{
		Root: "./resources",
		NET: NET{
			ReadBufferSize:      2048,
			WriteBufferSize:     1024,
			MaxPathLength:       200,
			Backlog:             5,
			MaxEvents:           10000,
			MaxConns:            65535,
			PollInterruptPeriod: time.Second,
		},
		Workers: Workers{
			Number:    8,
			QueueSize: 10000,
		},
	}
}

// Load reads a JSON document from the file and applies it over the defaults, so every
// omitted field keeps its default value. Durations are represented as integer nanoseconds.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err = json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate rejects values the server can't work with.
func (c *Config) Validate() error {
	switch {
	case len(c.Root) == 0:
		return fmt.Errorf("config: empty document root")
	case c.NET.ReadBufferSize <= 0 || c.NET.WriteBufferSize <= 0:
		return fmt.Errorf("config: buffer sizes must be positive")
	case c.NET.MaxPathLength <= len(c.Root):
		return fmt.Errorf("config: MaxPathLength (%d) leaves no space after the document root", c.NET.MaxPathLength)
	case c.NET.MaxEvents <= 0 || c.NET.MaxConns <= 0:
		return fmt.Errorf("config: MaxEvents and MaxConns must be positive")
	case c.Workers.Number <= 0 || c.Workers.QueueSize <= 0:
		return fmt.Errorf("config: workers number and queue size must be positive")
	}

	return nil
}
