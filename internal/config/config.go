// Package config loads process configuration: environment (optionally from a
// .env file) and the supported city set.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/pouriya/toolbelt/internal/geo"
)

//go:embed cities.toml
var defaultCities []byte

const (
	DefaultDB          = "toolbelt.db"
	DefaultAddr        = ":8086"
	DefaultHTTPTimeout = 8 * time.Second
)

// Config holds settings read once at process start.
type Config struct {
	// Owner is returned verbatim by the validate tool.
	Owner               string
	SpotifyClientID     string
	SpotifyClientSecret string
	AffiliatePrefix     string
	AffiliateSuffix     string
	HTTPTimeout         time.Duration
	CitiesPath          string
}

// Cities is the parsed city set plus resolution tuning.
type Cities struct {
	Set *geo.Set
	// MaxDistanceKm bounds nearest-city matching; 0 disables the bound.
	MaxDistanceKm float64
}

type citiesFile struct {
	MaxDistanceKm float64    `toml:"max_distance_km"`
	Popular       []string   `toml:"popular"`
	City          []geo.City `toml:"city"`
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	slog.Debug("loaded env file", "path", path)
	return nil
}

// FromEnv builds a Config from environment variables.
func FromEnv() *Config {
	c := &Config{
		Owner:               os.Getenv("TOOLBELT_OWNER"),
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		AffiliatePrefix:     os.Getenv("AFFILIATE_PREFIX"),
		AffiliateSuffix:     os.Getenv("AFFILIATE_SUFFIX"),
		CitiesPath:          os.Getenv("TOOLBELT_CITIES"),
		HTTPTimeout:         DefaultHTTPTimeout,
	}
	if v := os.Getenv("TOOLBELT_HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.HTTPTimeout = d
		} else if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.HTTPTimeout = time.Duration(secs) * time.Second
		} else {
			slog.Warn("ignoring invalid TOOLBELT_HTTP_TIMEOUT", "value", v)
		}
	}
	return c
}

// LoadCities reads the city set from path, or the built-in set when path is empty.
func LoadCities(path string) (*Cities, error) {
	if path == "" {
		return ParseCities(defaultCities)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cities: %w", err)
	}
	c, err := ParseCities(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseCities decodes a TOML city set.
func ParseCities(data []byte) (*Cities, error) {
	var f citiesFile
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("parse cities: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse cities: unknown key %q", undecoded[0].String())
	}
	if f.MaxDistanceKm < 0 {
		return nil, fmt.Errorf("parse cities: max_distance_km must not be negative")
	}
	set, err := geo.NewSet(f.City, f.Popular)
	if err != nil {
		return nil, fmt.Errorf("parse cities: %w", err)
	}
	return &Cities{Set: set, MaxDistanceKm: f.MaxDistanceKm}, nil
}
