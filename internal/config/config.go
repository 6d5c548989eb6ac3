// Package config loads the device table: which character devices exist,
// which backends they attach to, and which memory pools back them.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/chardev/internal/cdev"
	"github.com/tinyrange/chardev/internal/event"
	"github.com/tinyrange/chardev/internal/pool"
	"github.com/tinyrange/chardev/internal/ports"
)

// DefaultFilename is where the tools look for a device table.
const DefaultFilename = "chardev.yaml"

// Config is the on-disk device table.
type Config struct {
	Pools   []PoolConfig   `yaml:"pools,omitempty"`
	Devices []DeviceConfig `yaml:"devices"`
}

// PoolConfig declares one named memory pool and its partitions.
type PoolConfig struct {
	Name       string            `yaml:"name"`
	Size       int               `yaml:"size"`
	Partitions []PartitionConfig `yaml:"partitions,omitempty"`
}

// PartitionConfig carves a region out of a pool. A nil Start means first
// fit.
type PartitionConfig struct {
	Label  string `yaml:"label"`
	Start  *int   `yaml:"start,omitempty"`
	Size   int    `yaml:"size"`
	Export bool   `yaml:"export,omitempty"`
}

// DeviceConfig declares one device.
type DeviceConfig struct {
	Name  string `yaml:"name"`
	Minor uint8  `yaml:"minor,omitempty"`

	// Backend is one of null, loopback, mem, or pty.
	Backend string `yaml:"backend,omitempty"`

	// Pool and Partition locate the region of a mem backend.
	Pool      string `yaml:"pool,omitempty"`
	Partition string `yaml:"partition,omitempty"`

	Capacity int    `yaml:"capacity,omitempty"`
	Deferral string `yaml:"deferral,omitempty"`
	Quantum  int32  `yaml:"quantum,omitempty"`
	QsetSize int32  `yaml:"qsetSize,omitempty"`
}

func (c *Config) normalize() {
	for i := range c.Devices {
		if c.Devices[i].Backend == "" {
			c.Devices[i].Backend = "null"
		}
	}
}

// Load parses a device table.
func Load(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse device table: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// LoadFile reads and parses a device table from path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	cfg, err := Load(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Build turns the table into a live registry and its pools. Devices are
// created stopped; the caller decides when to StartAll.
func (c Config) Build(log *slog.Logger) (*cdev.Registry, *pool.Manager, error) {
	if log == nil {
		log = slog.Default()
	}

	pools := pool.NewManager()
	for _, pc := range c.Pools {
		p, err := pool.New(pc.Name, pc.Size)
		if err != nil {
			return nil, nil, fmt.Errorf("pool %s: %w", pc.Name, err)
		}
		for _, part := range pc.Partitions {
			start := -1
			if part.Start != nil {
				start = *part.Start
			}
			if _, err := p.Reserve(part.Label, start, part.Size, part.Export); err != nil {
				return nil, nil, fmt.Errorf("pool %s: %w", pc.Name, err)
			}
		}
		if err := pools.Add(p); err != nil {
			return nil, nil, err
		}
	}

	registry := cdev.NewRegistry(log)
	for _, dc := range c.Devices {
		if dc.Name == "" {
			return nil, nil, fmt.Errorf("device table: every device needs a name")
		}

		minor := cdev.Minor(dc.Minor)
		backend, err := c.buildBackend(dc, minor, pools, log)
		if err != nil {
			return nil, nil, fmt.Errorf("device %s: %w", dc.Name, err)
		}

		deferral, err := event.ParseDeferral(dc.Deferral)
		if err != nil {
			return nil, nil, fmt.Errorf("device %s: %w", dc.Name, err)
		}

		dev, err := cdev.NewDevice(dc.Name, cdev.Options{
			Minor:    minor,
			Capacity: dc.Capacity,
			Backend:  backend,
			Deferral: deferral,
			Quantum:  dc.Quantum,
			QsetSize: dc.QsetSize,
			Logger:   log,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := registry.Register(dev); err != nil {
			return nil, nil, err
		}
	}
	return registry, pools, nil
}

func (c Config) buildBackend(dc DeviceConfig, minor cdev.Minor, pools *pool.Manager, log *slog.Logger) (ports.Backend, error) {
	switch dc.Backend {
	case "null":
		return ports.NewNull(), nil

	case "loopback":
		// An echoing backend on a direct minor would buffer every write
		// twice, once from the write and once from the echo.
		if !minor.EventDriven() {
			return nil, fmt.Errorf("loopback backend needs an event-driven minor")
		}
		return ports.NewLoopback(), nil

	case "mem":
		if dc.Pool == "" || dc.Partition == "" {
			return nil, fmt.Errorf("mem backend needs pool and partition")
		}
		p, ok := pools.Get(dc.Pool)
		if !ok {
			return nil, fmt.Errorf("unknown pool %s", dc.Pool)
		}
		part, ok := p.Partition(dc.Partition)
		if !ok {
			return nil, fmt.Errorf("pool %s has no partition %s", dc.Pool, dc.Partition)
		}
		return ports.NewMem(part.Bytes())

	case "pty":
		if !minor.EventDriven() {
			return nil, fmt.Errorf("pty backend needs an event-driven minor")
		}
		stream, path, err := ports.NewPty()
		if err != nil {
			return nil, err
		}
		log.Info("pty allocated", "device", dc.Name, "path", path)
		return stream, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", dc.Backend)
	}
}
