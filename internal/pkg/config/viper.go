package config

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: jwt.secret is read from
// STEPGUARD_JWT_SECRET when that variable is set.
const EnvPrefix = "STEPGUARD"

// Viper implements Config on top of spf13/viper.
type Viper struct {
	v *viper.Viper
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// NewViper reads the file at path, with the format taken from its extension,
// and reloads it when the file changes on disk.
func NewViper(path string) (*Viper, error) {
	v := newViper()
	v.SetConfigFile(filepath.Clean(path))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("config file changed, reloaded", "path", e.Name, "op", e.Op.String())
	})
	v.WatchConfig()

	return &Viper{v: v}, nil
}

// NewViperFromBytes reads an in-memory document of the given type
// ("yaml", "json", "toml", ...). Tests use it.
func NewViperFromBytes(configType string, data []byte) (*Viper, error) {
	if strings.TrimSpace(configType) == "" {
		return nil, errors.New("config: type is required")
	}

	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", configType, err)
	}

	return &Viper{v: v}, nil
}

func (c *Viper) GetString(key string) string { return c.v.GetString(key) }

func (c *Viper) GetBool(key string) bool { return c.v.GetBool(key) }

func (c *Viper) GetInt(key string) int { return c.v.GetInt(key) }

func (c *Viper) GetInt32(key string) int32 { return c.v.GetInt32(key) }

func (c *Viper) GetFloat64(key string) float64 { return c.v.GetFloat64(key) }

func (c *Viper) GetSecond(key string) time.Duration {
	return time.Duration(c.v.GetInt64(key)) * time.Second
}

func (c *Viper) GetMinute(key string) time.Duration {
	return time.Duration(c.v.GetInt64(key)) * time.Minute
}

func (c *Viper) GetBinary(key string) []byte {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.v.GetString(key)))
	if err != nil {
		slog.Warn("config value is not valid base64", "key", key)
		return nil
	}
	return b
}

func (c *Viper) GetArray(key string) []string {
	var items []string
	switch raw := c.v.Get(key).(type) {
	case nil:
		return nil
	case []any, []string:
		items = cast.ToStringSlice(raw)
	default:
		items = strings.Split(cast.ToString(raw), ",")
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Close is a no-op; the file watcher lives as long as the process.
func (c *Viper) Close() error { return nil }
