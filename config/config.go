// Package config loads the server configuration.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Engine    Engine    `yaml:"engine"`
	Server    Server    `yaml:"server"`
	Journal   Journal   `yaml:"journal"`
	Outbox    Outbox    `yaml:"outbox"`
	Snapshot  Snapshot  `yaml:"snapshot"`
	Broadcast Broadcast `yaml:"broadcast"`
	Log       Log       `yaml:"log"`
}

type Engine struct {
	MaxOrders         int `yaml:"max_orders"`
	MaxPriceLevels    int `yaml:"max_price_levels"`
	MaxOrdersPerLevel int `yaml:"max_orders_per_level"`
}

type Server struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"` // empty disables /metrics
}

type Journal struct {
	Enabled     bool   `yaml:"enabled"`
	Dir         string `yaml:"dir"`
	SegmentSize int64  `yaml:"segment_size"`
	SyncEvery   bool   `yaml:"sync_every"` // fsync every append
}

type Outbox struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Codec   string `yaml:"codec"`
}

type Snapshot struct {
	Enabled  bool          `yaml:"enabled"`
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval"`
	Keep     int           `yaml:"keep"`
}

type Broadcast struct {
	Enabled    bool          `yaml:"enabled"`
	Driver     string        `yaml:"driver"`
	Brokers    []string      `yaml:"brokers"`
	Topic      string        `yaml:"topic"`
	StreamKey  string        `yaml:"stream_key"` // message key shared by all events
	Interval   time.Duration `yaml:"interval"`
	MaxRetries uint32        `yaml:"max_retries"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() Config {
	return Config{
		Engine: Engine{
			MaxOrders:         1 << 20,
			MaxPriceLevels:    4096,
			MaxOrdersPerLevel: 1024,
		},
		Server: Server{
			GRPCAddr:    ":50051",
			MetricsAddr: ":9100",
		},
		Journal: Journal{
			Enabled:     true,
			Dir:         "./data/journal",
			SegmentSize: 2 * 1024 * 1024,
			SyncEvery:   true,
		},
		Outbox: Outbox{
			Enabled: true,
			Dir:     "./data/outbox",
			Codec:   "proto",
		},
		Snapshot: Snapshot{
			Enabled:  true,
			Dir:      "./data/snapshot",
			Interval: time.Minute,
			Keep:     2,
		},
		Broadcast: Broadcast{
			Driver:     "kafka-go",
			Topic:      "trades",
			StreamKey:  "matchcore",
			Interval:   250 * time.Millisecond,
			MaxRetries: 5,
		},
		Log: Log{Level: "info"},
	}
}

// Load overlays the YAML file at path onto Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "config: read")
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "config: parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	e := c.Engine
	if e.MaxOrders <= 0 || e.MaxPriceLevels <= 0 || e.MaxOrdersPerLevel <= 0 {
		return errors.Newf("config: engine ceilings must be positive, got %+v", e)
	}
	if c.Server.GRPCAddr == "" {
		return errors.New("config: server.grpc_addr is empty")
	}
	if c.Journal.Enabled {
		if c.Journal.Dir == "" {
			return errors.New("config: journal.dir is empty")
		}
		if c.Journal.SegmentSize <= 0 {
			return errors.Newf("config: journal.segment_size %d", c.Journal.SegmentSize)
		}
	}
	if c.Outbox.Enabled {
		if c.Outbox.Dir == "" {
			return errors.New("config: outbox.dir is empty")
		}
		switch c.Outbox.Codec {
		case "json", "proto", "protobuf":
		default:
			return errors.Newf("config: unknown outbox.codec %q", c.Outbox.Codec)
		}
	}
	if sn := c.Snapshot; sn.Enabled {
		if !c.Journal.Enabled {
			return errors.New("config: snapshots require the journal")
		}
		if sn.Dir == "" || sn.Interval <= 0 {
			return errors.Newf("config: snapshot needs dir and interval, got %q %s", sn.Dir, sn.Interval)
		}
	}
	if b := c.Broadcast; b.Enabled {
		if !c.Outbox.Enabled {
			return errors.New("config: broadcast requires the outbox")
		}
		switch b.Driver {
		case "kafka-go", "sarama":
		default:
			return errors.Newf("config: unknown broadcast.driver %q", b.Driver)
		}
		if len(b.Brokers) == 0 || b.Topic == "" {
			return errors.New("config: broadcast needs brokers and topic")
		}
		if b.Interval <= 0 {
			return errors.Newf("config: broadcast.interval %s", b.Interval)
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf("config: unknown log.level %q", c.Log.Level)
	}
	return nil
}
