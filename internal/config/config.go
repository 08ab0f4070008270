// Package config is the key=value loader (spec §4.7, §6 C13): BOM
// tolerant, '#'-comment lines, last-write-wins on duplicate keys (see
// DESIGN.md C13 for why the source's first-write-wins was not kept).
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Config is an immutable-after-Load set of name=value pairs.
type Config struct {
	values map[string]string
}

// New returns an empty Config, useful for tests that don't load a file.
func New() *Config {
	return &Config{values: map[string]string{}}
}

// Load reads path and parses it line by line. A missing file is reported
// as an error (spec §7: configuration errors are fatal at startup).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data), nil
}

// Parse parses raw config-file bytes without touching the filesystem.
func Parse(data []byte) *Config {
	data = bytes.TrimPrefix(data, utf8BOM)

	c := &Config{values: map[string]string{}}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()

		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)

		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}

		c.values[name] = value // last-write-wins
	}
	return c
}

// Exists reports whether name was set in the config file.
func (c *Config) Exists(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Get returns the raw string value for name, or defaultValue if absent.
func (c *Config) Get(name, defaultValue string) string {
	if v, ok := c.values[name]; ok {
		return v
	}
	return defaultValue
}

// GetAs lexically casts name's value to T, falling back to defaultValue
// on a missing key or a parse failure (spec §4.7 "getAs<T> lexical-casts
// with default").
func GetAs[T int | int64 | bool | float64 | string](c *Config, name string, defaultValue T) T {
	raw, ok := c.values[name]
	if !ok {
		return defaultValue
	}

	var out any
	var err error
	switch any(defaultValue).(type) {
	case int:
		var v int
		v, err = strconv.Atoi(raw)
		out = v
	case int64:
		var v int64
		v, err = strconv.ParseInt(raw, 10, 64)
		out = v
	case bool:
		var v bool
		v, err = strconv.ParseBool(raw)
		out = v
	case float64:
		var v float64
		v, err = strconv.ParseFloat(raw, 64)
		out = v
	case string:
		out = raw
	}
	if err != nil {
		return defaultValue
	}
	return out.(T)
}
