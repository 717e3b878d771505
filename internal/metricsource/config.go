package metricsource

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"adwatch-backend/internal/detection"
)

const DefaultSource = "default"

type SourceConfig struct {
	Type     string        `yaml:"type"`
	Endpoint string        `yaml:"endpoint"`
	Command  string        `yaml:"command"`
	Args     []string      `yaml:"args"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Config maps a product name, or "default", to the source serving it.
type Config struct {
	Sources map[string]SourceConfig `yaml:"sources"`
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Sources) == 0 {
		return Config{}, fmt.Errorf("no metric sources configured")
	}
	return cfg, nil
}

// BuildRegistry wires every configured source. Sources of type warehouse
// resolve to wh, which may be nil when no warehouse is configured.
func (c Config) BuildRegistry(wh detection.MetricSource) (*Registry, error) {
	sources := map[string]detection.MetricSource{}
	for name, sc := range c.Sources {
		src, err := buildSource(sc, wh)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", name, err)
		}
		sources[name] = src
	}
	return NewRegistry(sources), nil
}

func buildSource(cfg SourceConfig, wh detection.MetricSource) (detection.MetricSource, error) {
	switch strings.ToLower(cfg.Type) {
	case "warehouse":
		if wh == nil {
			return nil, fmt.Errorf("warehouse source requested but no warehouse is configured")
		}
		return wh, nil
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("http endpoint required")
		}
		t := DefaultHTTPTransport(cfg.Endpoint)
		if cfg.Timeout > 0 {
			t.Timeout = cfg.Timeout
		}
		return NewRemoteSource(t), nil
	case "stdio":
		if cfg.Command == "" {
			return nil, fmt.Errorf("stdio command required")
		}
		t := DefaultStdioTransport(cfg.Command, cfg.Args)
		if cfg.Timeout > 0 {
			t.Timeout = cfg.Timeout
		}
		return NewRemoteSource(t), nil
	default:
		return nil, fmt.Errorf("unsupported source type %q", cfg.Type)
	}
}
