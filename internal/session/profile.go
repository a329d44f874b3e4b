package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"studydash/internal/analytics"
)

const profileFile = "config.yaml"

// DefaultServer is the API used when neither the profile nor a flag sets one
const DefaultServer = "http://localhost:8080"

// Profile is the user-edited CLI configuration
type Profile struct {
	Server    string   `yaml:"server"`
	Study     int64    `yaml:"study,omitempty"`
	Timezone  string   `yaml:"timezone,omitempty"`
	Variables []string `yaml:"variables,omitempty"`
	// SleepRoles maps a study ID to its default role assignment
	SleepRoles map[int64]analytics.SleepRoles `yaml:"sleep_roles,omitempty"`
}

// DefaultProfile returns a profile pointing at a local server
func DefaultProfile() *Profile {
	return &Profile{Server: DefaultServer}
}

// LoadProfile reads config.yaml in dir. A missing file gives the defaults.
func LoadProfile(dir string) (*Profile, error) {
	p := DefaultProfile()
	path := filepath.Join(dir, profileFile)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if p.Server == "" {
		p.Server = DefaultServer
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return p, nil
}

// Validate checks the timezone names a real location
func (p *Profile) Validate() error {
	if p.Timezone == "" {
		return nil
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

// Location is the profile timezone, or nil when unset
func (p *Profile) Location() *time.Location {
	if p.Timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil
	}
	return loc
}

// Save writes the profile to config.yaml in dir
func (p *Profile) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, profileFile), data, 0o600); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// ResolveSleepRoles prefers the roles saved in the session over the
// profile's defaults for the study
func ResolveSleepRoles(s *State, p *Profile, studyID int64) analytics.SleepRoles {
	if s != nil {
		if r, ok := s.SleepRoles(studyID); ok {
			return r
		}
	}
	if p != nil {
		return p.SleepRoles[studyID]
	}
	return analytics.SleepRoles{}
}
