package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Profile describes one connected instrument
type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Format string `json:"format"`
	// Device is the SysEx device ID (or MIDI channel for formats that use one)
	Device byte `json:"device"`
	// Channel is the 0-based MIDI channel used for note audition
	Channel uint8 `json:"channel"`
	// Port is a case-insensitive fragment of the MIDI port name
	Port string `json:"port"`
}

// NewProfile creates a profile with a fresh ID
func NewProfile(name, format string) Profile {
	return Profile{
		ID:     uuid.New().String(),
		Name:   name,
		Format: format,
		Port:   name,
	}
}

// Config holds application configuration
type Config struct {
	Profiles       []Profile `json:"profiles"`
	CurrentProfile string    `json:"current_profile"`
	Listen         string    `json:"listen"`
	Strict         bool      `json:"strict"`
	DebounceMS     int       `json:"debounce_ms"`
	TimeoutMS      int       `json:"timeout_ms"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	p := NewProfile("blofeld", "waldorf/sound")
	p.Channel = 4
	return &Config{
		Profiles:       []Profile{p},
		CurrentProfile: p.ID,
		Listen:         ":8080",
		DebounceMS:     100,
		TimeoutMS:      5000,
	}
}

// configDir returns the platform-appropriate config directory
func configDir() (string, error) {
	configHome, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configHome, "patchmcp"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, returning defaults if not found
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

func LoadFrom(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.Profiles = nil
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}

	// Ensure there is always a profile to select
	if len(cfg.Profiles) == 0 {
		d := Default()
		cfg.Profiles = d.Profiles
		cfg.CurrentProfile = d.CurrentProfile
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

func (c *Config) SaveTo(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}

// Current returns the selected profile, falling back to the first one
func (c *Config) Current() Profile {
	for _, p := range c.Profiles {
		if p.ID == c.CurrentProfile || p.Name == c.CurrentProfile {
			return p
		}
	}
	if len(c.Profiles) > 0 {
		return c.Profiles[0]
	}
	return Default().Profiles[0]
}

// AddProfile adds a profile to the config
func (c *Config) AddProfile(p Profile) {
	c.Profiles = append(c.Profiles, p)
}

// RemoveProfile removes a profile by ID
func (c *Config) RemoveProfile(id string) {
	for i, p := range c.Profiles {
		if p.ID == id {
			c.Profiles = append(c.Profiles[:i], c.Profiles[i+1:]...)
			return
		}
	}
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func (c *Config) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
