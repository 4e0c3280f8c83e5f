package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Project ProjectConfig     `yaml:"project"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Events  EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Project.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Events.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ProjectConfig locates the project whose plan is tracked.
//
// DocsDir is resolved against Root unless it is absolute. Name is reported
// when architecture.json carries no project_name. Watch reloads the plan
// when functions or architecture documents change on disk.
type ProjectConfig struct {
	Name    string `yaml:"name"`
	Root    string `yaml:"root"`
	DocsDir string `yaml:"docs_dir"`
	Watch   bool   `yaml:"watch"`
}

// Validate validates the project configuration.
func (c *ProjectConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.DocsDir, validation.Required),
	)
}

// DocsPath returns the directory holding the project documents.
func (c *ProjectConfig) DocsPath() string {
	if filepath.IsAbs(c.DocsDir) {
		return c.DocsDir
	}
	return filepath.Join(c.Root, c.DocsDir)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// EventsConfig holds SSE configuration.
type EventsConfig struct {
	// GraphThrottle is the minimum interval between progress.updated events.
	GraphThrottle time.Duration `yaml:"graph_throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.GraphThrottle, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Project: ProjectConfig{
			Root:    ".",
			DocsDir: "docs",
			Watch:   true,
		},
		SQLite: SQLiteConfig{
			Path: "./taskgraph.db",
		},
		Events: EventsConfig{
			GraphThrottle: 2 * time.Second,
		},
	}
}
