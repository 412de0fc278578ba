// Package config loads the service configuration from flags, environment
// variables (prefix AUTHUSER_) and an optional config file, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mindtastic/authuser"
	"github.com/mindtastic/authuser/log"
)

const envPrefix = "AUTHUSER"

// Store drivers.
const (
	StoreMemory    = "memory"
	StoreLocalFile = "localfile"
	StoreLogFile   = "logfile"
)

// Config holds the service configuration.
type Config struct {
	Addr     string
	LogLevel string `mapstructure:"log_level"`
	Store    StoreConfig
	// Accounts seeds default accounts, keyed by service key, for services
	// that have none stored yet.
	Accounts map[string]string
}

// StoreConfig selects and configures the account store.
type StoreConfig struct {
	Driver string
	// Path is the JSON file for localfile and the directory for logfile.
	Path string
	Sync bool
}

// Flags returns the command line flags understood by Load.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to a config file (yaml, toml or json)")
	fs.String("addr", ":8000", "address to listen on")
	fs.String("log-level", "info", "log level: debug, info, warning, error")
	fs.String("store", StoreLocalFile, "account store: memory, localfile or logfile")
	fs.String("db", "/data/db/authuser.json", "account store path")
	fs.Bool("sync", false, "sync the logfile store to disk after every write")
	return fs
}

// Load parses args with fs and merges the result with the environment and the
// config file named by --config, if any.
func Load(fs *pflag.FlagSet, args []string) (Config, error) {
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetDefault("addr", ":8000")
	v.SetDefault("log_level", "info")
	v.SetDefault("store.driver", StoreLocalFile)
	v.SetDefault("store.path", "/data/db/authuser.json")
	v.SetDefault("store.sync", false)

	bindings := map[string]string{
		"addr":         "addr",
		"log_level":    "log-level",
		"store.driver": "store",
		"store.path":   "db",
		"store.sync":   "sync",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Debugf("loaded config file %s", filepath.Clean(path))
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values that viper cannot check by type alone.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StoreLocalFile, StoreLogFile:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store %s needs a path", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	for k := range c.Accounts {
		if _, err := authuser.ParseService(k); err != nil {
			errs = append(errs, fmt.Errorf("accounts: %w", err))
		}
	}
	return errors.Join(errs...)
}

// SeedAccounts returns the configured accounts keyed by service.
func (c Config) SeedAccounts() map[authuser.Service]string {
	out := make(map[authuser.Service]string, len(c.Accounts))
	for k, v := range c.Accounts {
		svc, err := authuser.ParseService(k)
		if err != nil {
			continue
		}
		out[svc] = v
	}
	return out
}
