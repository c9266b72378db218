// Package config loads the YAML device registry castctl uses to resolve
// a friendly device name to a host/port pair, modeled on the
// defaults-after-unmarshal pattern used elsewhere in this codebase's
// ancestry for service configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DeviceConfig is one entry of the registry's `devices` list.
type DeviceConfig struct {
	Name       string `yaml:"name"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	SenderID   string `yaml:"sender_id"`
	RemoteName string `yaml:"remote_name"`
}

// Registry is the top-level document shape: a flat list of known
// devices plus a registry-wide request timeout. Load fills device
// fields left blank with package defaults.
type Registry struct {
	RequestTimeout time.Duration  `yaml:"request_timeout"`
	Devices        []DeviceConfig `yaml:"devices"`

	byName map[string]DeviceConfig
}

const (
	defaultPort           = 8009
	defaultSenderID       = "sender-0"
	defaultRequestTimeout = 30 * time.Second
)

// Load reads and parses a device registry from path, applying defaults
// and indexing devices by name.
func Load(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var r Registry
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if r.RequestTimeout == 0 {
		r.RequestTimeout = defaultRequestTimeout
	}

	r.byName = make(map[string]DeviceConfig, len(r.Devices))
	for i := range r.Devices {
		d := &r.Devices[i]
		if d.Port == 0 {
			d.Port = defaultPort
		}
		if d.SenderID == "" {
			d.SenderID = defaultSenderID
		}
		if d.RemoteName == "" {
			d.RemoteName = d.Name
		}
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("config: device %q: %w", d.Name, err)
		}
		r.byName[d.Name] = *d
	}

	return &r, nil
}

func (d *DeviceConfig) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(d.Host) == "" {
		return fmt.Errorf("host is required")
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("port %d out of range", d.Port)
	}
	return nil
}

// Lookup resolves a device by its registry name.
func (r *Registry) Lookup(name string) (DeviceConfig, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Names returns every registered device name, in registry order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Devices))
	for _, d := range r.Devices {
		names = append(names, d.Name)
	}
	return names
}
