// Package config loads diced settings from <home>/config/diced.toml with
// DICED_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	configName = "diced"
	configType = "toml"
	envPrefix  = "DICED"

	KeyHome          = "home"
	KeyABCIAddr      = "abci.addr"
	KeyABCITransport = "abci.transport"
	KeyDBBackend     = "db.backend"
	KeyDBDir         = "db.dir"
	KeyStorePath     = "store.path"
	KeyLogLevel      = "log.level"
	KeyLogFormat     = "log.format"
	KeyDevAllowMint  = "dev.allow_mint"
)

type ABCI struct {
	Addr      string `toml:"addr" mapstructure:"addr"`
	Transport string `toml:"transport" mapstructure:"transport"`
}

type DB struct {
	Backend string `toml:"backend" mapstructure:"backend"`
	Dir     string `toml:"dir" mapstructure:"dir"`
}

type Store struct {
	Path string `toml:"path" mapstructure:"path"`
}

type Log struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"`
}

type Dev struct {
	AllowMint bool `toml:"allow_mint" mapstructure:"allow_mint"`
}

type Config struct {
	Home  string `toml:"-" mapstructure:"home"`
	ABCI  ABCI   `toml:"abci" mapstructure:"abci"`
	DB    DB     `toml:"db" mapstructure:"db"`
	Store Store  `toml:"store" mapstructure:"store"`
	Log   Log    `toml:"log" mapstructure:"log"`
	Dev   Dev    `toml:"dev" mapstructure:"dev"`
}

// Default is the configuration `diced init` writes. Relative paths are
// resolved against home.
func Default() Config {
	return Config{
		ABCI:  ABCI{Addr: "tcp://127.0.0.1:26658", Transport: "socket"},
		DB:    DB{Backend: "goleveldb", Dir: "data"},
		Store: Store{Path: "data/dice.db"},
		Log:   Log{Level: "info", Format: "plain"},
	}
}

// Path is the config file location under home.
func Path(home string) string {
	return filepath.Join(home, "config", configName+"."+configType)
}

// Load reads the config file under home, if any, then applies DICED_*
// environment overrides. A missing file yields the defaults.
func Load(v *viper.Viper, home string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	def := Default()
	v.SetDefault(KeyHome, home)
	v.SetDefault(KeyABCIAddr, def.ABCI.Addr)
	v.SetDefault(KeyABCITransport, def.ABCI.Transport)
	v.SetDefault(KeyDBBackend, def.DB.Backend)
	v.SetDefault(KeyDBDir, def.DB.Dir)
	v.SetDefault(KeyStorePath, def.Store.Path)
	v.SetDefault(KeyLogLevel, def.Log.Level)
	v.SetDefault(KeyLogFormat, def.Log.Format)
	v.SetDefault(KeyDevAllowMint, def.Dev.AllowMint)

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(filepath.Join(home, "config"))
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Home == "" {
		cfg.Home = home
	}
	cfg.DB.Dir = resolve(cfg.Home, cfg.DB.Dir)
	cfg.Store.Path = resolve(cfg.Home, cfg.Store.Path)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolve(home string, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(home, p)
}

func (c Config) Validate() error {
	if c.ABCI.Addr == "" {
		return errors.New("abci.addr is empty")
	}
	switch c.ABCI.Transport {
	case "socket", "grpc":
	default:
		return fmt.Errorf("abci.transport must be socket or grpc, got %q", c.ABCI.Transport)
	}
	if c.Store.Path == "" {
		return errors.New("store.path is empty")
	}
	if _, err := c.ZerologLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "plain", "json":
	default:
		return fmt.Errorf("log.format must be plain or json, got %q", c.Log.Format)
	}
	return nil
}

func (c Config) ZerologLevel() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// WriteDefault writes cfg to the config file under home. An existing file
// is left alone unless overwrite is set.
func WriteDefault(home string, cfg Config, overwrite bool) (string, error) {
	path := Path(home)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return path, os.ErrExist
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	b, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}
