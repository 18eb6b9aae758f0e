// Package config loads latticed's runtime configuration: a set of
// compiled-in defaults decoded from TOML, overlaid with a YAML config
// file that can be hot-reloaded while the daemon is running.
//
// The split mirrors internal/formula/parser.go's toml.Unmarshal for
// fixed, ship-with-the-binary data and internal/labelmutex/policy.go's
// viper.New/SetConfigType("yaml") for the operator-editable file, which
// is why two different TOML/YAML libraries both have a home here rather
// than picking one.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// defaultsTOML holds the static, compiled-in baseline every Config starts
// from before the YAML file overlays operator choices on top.
const defaultsTOML = `
[server]
address = ":8081"

[backend]
kind = "sqlite"
path = "lattice.db"

[backend.mysql]
host = "127.0.0.1"
port = 3306

[backend.dolt]
data_dir = "lattice-dolt"
database = "lattice"

[blobstore]
root = "lattice-documents"

[ingest]
enable_object_locking = false
`

// Server configures the REST front door.
type Server struct {
	Address string `toml:"address" mapstructure:"address"`
}

// Backend selects and configures the SQL Adapter backend.
type Backend struct {
	Kind  string `toml:"kind" mapstructure:"kind"` // "sqlite", "mysql", or "dolt"
	Path  string `toml:"path" mapstructure:"path"` // sqlite file path
	MySQL struct {
		Host     string `toml:"host" mapstructure:"host"`
		Port     int    `toml:"port" mapstructure:"port"`
		User     string `toml:"user" mapstructure:"user"`
		Password string `toml:"password" mapstructure:"password"`
		Database string `toml:"database" mapstructure:"database"`
	} `toml:"mysql" mapstructure:"mysql"`
	Dolt struct {
		DataDir  string `toml:"data_dir" mapstructure:"data_dir"`
		Database string `toml:"database" mapstructure:"database"`
	} `toml:"dolt" mapstructure:"dolt"`
}

// Blobstore configures the filesystem document store.
type Blobstore struct {
	Root string `toml:"root" mapstructure:"root"`
}

// Ingest configures ingest-pipeline-wide behavior.
type Ingest struct {
	EnableObjectLocking bool `toml:"enable_object_locking" mapstructure:"enable_object_locking"`
}

// Config is latticed's fully resolved runtime configuration.
type Config struct {
	Server    Server    `toml:"server" mapstructure:"server"`
	Backend   Backend   `toml:"backend" mapstructure:"backend"`
	Blobstore Blobstore `toml:"blobstore" mapstructure:"blobstore"`
	Ingest    Ingest    `toml:"ingest" mapstructure:"ingest"`
}

func defaults() (Config, error) {
	var c Config
	if _, err := toml.Decode(defaultsTOML, &c); err != nil {
		return Config{}, fmt.Errorf("config: decode built-in defaults: %w", err)
	}
	return c, nil
}

// Watcher wraps a viper instance bound to a YAML config file, exposing
// the currently resolved Config and a hot-reload hook. LATTICE_-prefixed
// environment variables (e.g. LATTICE_SERVER_ADDRESS) override the file,
// which itself overrides the compiled-in defaults.
type Watcher struct {
	v *viper.Viper

	mu  sync.RWMutex
	cur Config
}

// Load reads path (if it exists) over the compiled-in defaults and
// starts watching it for changes. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Watcher, error) {
	base, err := defaults()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LATTICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindDefaults(v, base)

	w := &Watcher{v: v, cur: base}
	if err := w.reload(); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else {
			if err := w.reload(); err != nil {
				return nil, err
			}
			v.OnConfigChange(func(fsnotify.Event) { _ = w.reload() })
			v.WatchConfig()
		}
	}

	return w, nil
}

// bindDefaults seeds viper with base's own values so a key absent from
// both the YAML file and the environment still resolves to the
// compiled-in default rather than a zero value.
func bindDefaults(v *viper.Viper, base Config) {
	v.SetDefault("server.address", base.Server.Address)
	v.SetDefault("backend.kind", base.Backend.Kind)
	v.SetDefault("backend.path", base.Backend.Path)
	v.SetDefault("backend.mysql.host", base.Backend.MySQL.Host)
	v.SetDefault("backend.mysql.port", base.Backend.MySQL.Port)
	v.SetDefault("backend.dolt.data_dir", base.Backend.Dolt.DataDir)
	v.SetDefault("backend.dolt.database", base.Backend.Dolt.Database)
	v.SetDefault("blobstore.root", base.Blobstore.Root)
	v.SetDefault("ingest.enable_object_locking", base.Ingest.EnableObjectLocking)
}

func (w *Watcher) reload() error {
	var c Config
	if err := w.v.Unmarshal(&c); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}
	w.mu.Lock()
	w.cur = c
	w.mu.Unlock()
	return nil
}

// Current returns the most recently resolved Config, safe to call
// concurrently with a background file-change reload.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}
