// Package config loads server and CLI settings.
//
// Sources are applied in order: built-in defaults, an optional YAML file
// (-config), environment variables (CINECART_*, with a .env file filling in
// unset ones), then command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Lookup resolves an environment variable.
type Lookup func(key string) (string, bool)

// Env returns a Lookup over the process environment, falling back to the
// dotenv file at path. A missing file is not an error.
func Env(path string) (Lookup, error) {
	dot, err := godotenv.Read(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return func(k string) (string, bool) {
		if v, ok := os.LookupEnv(k); ok {
			return v, true
		}
		v, ok := dot[k]
		return v, ok
	}, nil
}

// MapLookup adapts a map, for tests.
func MapLookup(m map[string]string) Lookup {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

// envReader applies typed variables and keeps the first parse error.
type envReader struct {
	lookup Lookup
	err    error
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = n
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = b
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = d
}

func (r *envReader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("env %s: %w", key, err)
	}
}

func readYAML(path string, dst any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// load runs the layering for one config type. bind registers flags on fs
// that write into cfg and returns the -config destination.
func load[T any](name string, args []string, env Lookup, defaults T,
	bind func(fs *flag.FlagSet, cfg *T) *string, fromEnv func(r *envReader, cfg *T),
) (*T, []string, error) {
	// first pass only discovers -config and rejects bad flags early
	probe := defaults
	fs1 := flag.NewFlagSet(name, flag.ContinueOnError)
	fs1.SetOutput(io.Discard)
	path := bind(fs1, &probe)
	if err := fs1.Parse(args); err != nil {
		return nil, nil, err
	}

	cfg := defaults
	if *path != "" {
		if err := readYAML(*path, &cfg); err != nil {
			return nil, nil, err
		}
	}
	r := &envReader{lookup: env}
	fromEnv(r, &cfg)
	if r.err != nil {
		return nil, nil, r.err
	}

	// second pass: flags given on the command line win
	fs2 := flag.NewFlagSet(name, flag.ContinueOnError)
	fs2.SetOutput(io.Discard)
	bind(fs2, &cfg)
	if err := fs2.Parse(args); err != nil {
		return nil, nil, err
	}
	return &cfg, fs2.Args(), nil
}

// DefaultDataDir mirrors the XDG config location.
func DefaultDataDir(env Lookup) string {
	if v, ok := env("XDG_CONFIG_HOME"); ok && v != "" {
		return filepath.Join(v, "cinecart")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "cinecart")
}
