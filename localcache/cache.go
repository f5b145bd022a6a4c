// Package localcache remembers the last session on this device so an
// elderly user can resume without onboarding again. It is not
// authoritative: the diary store is.
package localcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"voicediary/diary"
)

type Role string

const (
	RoleElderly  Role = "elderly"
	RoleRelative Role = "relative"
)

type state struct {
	DeviceID    string         `yaml:"device_id,omitempty"`
	PairingCode string         `yaml:"pairing_code,omitempty"`
	Role        Role           `yaml:"role,omitempty"`
	Profile     *diary.Profile `yaml:"profile,omitempty"`
}

// Cache is a YAML file guarded by a mutex. Every setter writes through.
type Cache struct {
	path string
	mu   sync.Mutex
	st   state
}

// Open loads path. A missing file yields an empty cache; a corrupt one is
// reported and replaced on the next write.
func Open(path string) (*Cache, error) {
	c := &Cache{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("read cache: %w", err)
	}
	if err := yaml.Unmarshal(data, &c.st); err != nil {
		c.st = state{}
		return c, fmt.Errorf("parse cache %s: %w", path, err)
	}
	return c, nil
}

func (c *Cache) PairingCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.PairingCode
}

func (c *Cache) SetPairingCode(code string) error {
	return c.update(func(s *state) { s.PairingCode = code })
}

func (c *Cache) Role() Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.Role
}

func (c *Cache) SetRole(r Role) error {
	return c.update(func(s *state) { s.Role = r })
}

func (c *Cache) DeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.DeviceID
}

func (c *Cache) SetDeviceID(id string) error {
	return c.update(func(s *state) { s.DeviceID = id })
}

// Profile returns a copy of the cached profile, or nil.
func (c *Cache) Profile() *diary.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.Profile == nil {
		return nil
	}
	p := *c.st.Profile
	return &p
}

func (c *Cache) SetProfile(p *diary.Profile) error {
	var cp *diary.Profile
	if p != nil {
		v := *p
		cp = &v
	}
	return c.update(func(s *state) { s.Profile = cp })
}

// Clear forgets the session but keeps the device identity.
func (c *Cache) Clear() error {
	return c.update(func(s *state) { *s = state{DeviceID: s.DeviceID} })
}

func (c *Cache) update(fn func(*state)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.st)
	if c.path == "" {
		return nil
	}
	data, err := yaml.Marshal(&c.st)
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return os.Rename(tmp, c.path)
}
