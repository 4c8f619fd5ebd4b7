package command

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Profile is a reusable run description loaded from a YAML file
type Profile struct {
	Program string            `yaml:"program"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`   // variables to set
	Unset   []string          `yaml:"unset,omitempty"` // variables to remove
	Dir     string            `yaml:"dir,omitempty"`
	Detach  bool              `yaml:"detach,omitempty"`  // return as soon as the process exists
	Wrapper string            `yaml:"wrapper,omitempty"` // headless display wrapper override
}

// LoadProfile reads and parses a YAML run profile
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", path, err)
	}
	return ParseProfile(data)
}

// ParseProfile parses YAML bytes into a Profile
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	return &p, nil
}

// Command builds the command described by the profile.
// Variables are set in key order, then removals are applied.
func (p *Profile) Command() *Command {
	c := New(p.Program, p.Args...)
	c.Dir = p.Dir

	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.Set(k, p.Env[k])
	}
	for _, k := range p.Unset {
		c.Remove(k)
	}
	return c
}
