package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "PERSONAFORGE_"
	// EnvConfigPath names a config file when no path is given.
	EnvConfigPath = EnvPrefix + "CONFIG"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// searchPaths are tried in order when neither a path nor EnvConfigPath is set.
var searchPaths = []string{
	"personaforge.yaml",
	"config.yaml",
	"config.yml",
	"config.json",
	"configs/config.yaml",
	"/etc/personaforge/config.yaml",
}

// Loader merges defaults, a config file, PERSONAFORGE_* variables and
// explicit overrides, in increasing precedence. It remembers the overrides
// so Reload keeps command line flags in force.
type Loader struct {
	mu        sync.Mutex
	k         *koanf.Koanf
	path      string
	overrides map[string]interface{}
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{k: koanf.New(Delimiter)}
}

// Load builds a Config from every source and validates it.
func (l *Loader) Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides = overrides
	return l.load(configPath)
}

// Reload reads configPath again with the overrides of the last Load.
func (l *Loader) Reload(configPath string) (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(configPath)
}

// Path returns the file the last Load read, or "" when none was found.
func (l *Loader) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

func (l *Loader) load(configPath string) (*Config, error) {
	// A fresh tree per load so a reload drops removed keys.
	l.k = koanf.New(Delimiter)
	defaults := flatten(DefaultConfig())

	steps := []struct {
		name string
		run  func() error
	}{
		{"defaults", func() error { return l.k.Load(confmap.Provider(defaults, Delimiter), nil) }},
		{"config file", func() error { return l.loadFile(configPath) }},
		{"env vars", func() error { return l.loadEnv(defaults) }},
		{"overrides", func() error {
			if len(l.overrides) == 0 {
				return nil
			}
			return l.k.Load(confmap.Provider(l.overrides, Delimiter), nil)
		}},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", s.name, err)
		}
	}

	// A file section written as an empty map replaces the defaults below it.
	for key, value := range defaults {
		if !l.k.Exists(key) {
			_ = l.k.Set(key, value)
		}
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadFile reads an explicit path, falling back to EnvConfigPath and then
// searchPaths. Only an explicit or env-named file must exist.
func (l *Loader) loadFile(path string) error {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		for _, candidate := range searchPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			l.path = ""
			return nil
		}
	}

	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file not found: %s", path)
	}
	if err := l.k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	l.path = path
	return nil
}

// loadEnv maps PERSONAFORGE_STORAGE_BADGER_PATH to storage.badger.path by
// matching against the known keys, so keys that contain underscores
// themselves (generation.max_tokens) resolve. Comma separated values of
// list keys become lists.
func (l *Loader) loadEnv(defaults map[string]interface{}) error {
	known := make(map[string]string, len(defaults))
	for key := range defaults {
		known[strings.ReplaceAll(key, Delimiter, "_")] = key
	}

	return l.k.Load(env.ProviderWithValue(EnvPrefix, Delimiter, func(name, value string) (string, interface{}) {
		key, ok := known[strings.ToLower(strings.TrimPrefix(name, EnvPrefix))]
		if !ok {
			return "", nil
		}
		if _, isList := defaults[key].([]interface{}); isList {
			return key, strings.Split(value, ",")
		}
		return key, value
	}), nil)
}

// Get returns the merged value at key, or nil.
func (l *Loader) Get(key string) interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.Get(key)
}

// Keys returns every key of the merged tree.
func (l *Loader) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.Keys()
}

// flatten turns a struct into dot-separated keys following mapstructure
// tags. Empty maps are left out so they do not shadow file values.
func flatten(v interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	flattenValue(reflect.ValueOf(v), "", out)
	return out
}

func flattenValue(val reflect.Value, prefix string, out map[string]interface{}) {
	val = reflect.Indirect(val)
	if val.Kind() != reflect.Struct {
		return
	}
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("mapstructure")
		if !field.IsExported() || tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + Delimiter + tag
		}

		fv := val.Field(i)
		switch fv.Kind() {
		case reflect.Ptr:
			if !fv.IsNil() {
				flattenValue(fv, key, out)
			}
		case reflect.Struct:
			flattenValue(fv, key, out)
		case reflect.Slice:
			items := make([]interface{}, fv.Len())
			for j := range items {
				items[j] = fv.Index(j).Interface()
			}
			out[key] = items
		case reflect.Map:
			if fv.Len() > 0 {
				out[key] = fv.Interface()
			}
		default:
			out[key] = fv.Interface()
		}
	}
}

// Load is a convenience function to load configuration.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	return NewLoader().Load(configPath, overrides)
}

// LoadOrDie loads configuration and panics on error.
func LoadOrDie(configPath string, overrides map[string]interface{}) *Config {
	cfg, err := Load(configPath, overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
