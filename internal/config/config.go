// Package config resolves service settings from hardcoded defaults, an optional
// YAML file, an optional remote JSON document and the environment, in that order.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"dispatch-map-service/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Keys accepted from any source. Anything else in a file or remote document is rejected.
const (
	KeyAPIOrigin          = "API_ORIGIN"
	KeyAPILocale          = "API_LOCALE"
	KeyAPIToken           = "API_TOKEN"
	KeyMapCenterLat       = "MAP_CENTER_LAT"
	KeyMapCenterLng       = "MAP_CENTER_LNG"
	KeyMapZoom            = "MAP_ZOOM"
	KeyMaxPoints          = "MAP_MAX_POINTS"
	KeyMinPointsInCluster = "MAP_MIN_POINTS_IN_CLUSTER"
	KeyORSAPIKey          = "ORS_API_KEY"
	KeyDatabaseURL        = "DATABASE_URL"
	KeyRedisURL           = "REDIS_URL"
	KeyPort               = "PORT"
	KeyLogLevel           = "LOG_LEVEL"
	KeyJWTSecret          = "JWT_SECRET"
	KeySeedPath           = "SEED_PATH"
)

// Source locations. These only come from the environment.
const (
	envConfigFile = "CONFIG_FILE"
	envConfigURL  = "CONFIG_URL"
)

// remotePrefix is stripped from remote keys so a deployment can reuse its env file as JSON.
const remotePrefix = "DISPATCH_"

var keys = []string{
	KeyAPIOrigin,
	KeyAPILocale,
	KeyAPIToken,
	KeyMapCenterLat,
	KeyMapCenterLng,
	KeyMapZoom,
	KeyMaxPoints,
	KeyMinPointsInCluster,
	KeyORSAPIKey,
	KeyDatabaseURL,
	KeyRedisURL,
	KeyPort,
	KeyLogLevel,
	KeyJWTSecret,
	KeySeedPath,
}

func defaults() map[string]string {
	return map[string]string{
		KeyAPIOrigin:          "http://localhost:8000",
		KeyAPILocale:          "en",
		KeyMapCenterLat:       "59.437",
		KeyMapCenterLng:       "24.7536",
		KeyMapZoom:            "12",
		KeyMaxPoints:          "500",
		KeyMinPointsInCluster: "3",
		KeyPort:               "8080",
		KeyLogLevel:           "info",
		KeySeedPath:           "data/seeds/orders.json",
	}
}

// Config is the resolved service configuration.
type Config struct {
	APIOrigin          string
	APILocale          string
	APIToken           string
	MapCenter          domain.Coordinates
	MapZoom            int
	MaxPoints          int
	MinPointsInCluster int
	ORSAPIKey          string
	DatabaseURL        string
	RedisURL           string
	Port               string
	LogLevel           string
	JWTSecret          string
	SeedPath           string
}

// Loader reads configuration sources. Zero values fall back to the process environment
// and a client with a 10s timeout.
type Loader struct {
	Getenv     func(string) string
	HTTPClient *http.Client
}

// Load reads .env (when present) into the environment and resolves the configuration.
func Load(ctx context.Context) (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return Loader{}.Load(ctx)
}

// Get returns the environment value for key, or fallback when unset or blank.
func Get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Load resolves the configuration. Later sources override earlier ones; blank
// environment values count as unset.
func (l Loader) Load(ctx context.Context) (Config, error) {
	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	values := defaults()

	if path := strings.TrimSpace(getenv(envConfigFile)); path != "" {
		fromFile, err := readFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		merge(values, fromFile)
	}

	if url := strings.TrimSpace(getenv(envConfigURL)); url != "" {
		remote, err := l.fetchRemote(ctx, url)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		merge(values, remote)
	}

	for _, key := range keys {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			values[key] = v
		}
	}

	cfg, err := parse(values)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %q: %w", path, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse file %q: %w", path, err)
	}

	out, err := normalize(doc, "")
	if err != nil {
		return nil, fmt.Errorf("file %q: %w", path, err)
	}
	return out, nil
}

func (l Loader) fetchRemote(ctx context.Context, url string) (map[string]string, error) {
	client := l.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build remote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch remote %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch remote %s: status %d", url, resp.StatusCode)
	}

	var doc map[string]any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode remote %s: %w", url, err)
	}

	out, err := normalize(doc, remotePrefix)
	if err != nil {
		return nil, fmt.Errorf("remote %s: %w", url, err)
	}
	return out, nil
}

// normalize maps keys such as "map-zoom", "map_zoom" or "DISPATCH_MAP_ZOOM" onto the
// allow-listed env names.
func normalize(doc map[string]any, prefix string) (map[string]string, error) {
	out := make(map[string]string, len(doc))
	for rawKey, v := range doc {
		key := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(strings.TrimSpace(rawKey)))
		if prefix != "" {
			key = strings.TrimPrefix(key, prefix)
		}
		if !known(key) {
			return nil, fmt.Errorf("unrecognized configuration key %q", rawKey)
		}
		if v == nil {
			continue
		}
		out[key] = fmt.Sprint(v)
	}
	return out, nil
}

func known(key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func merge(dst, src map[string]string) {
	for k, v := range src {
		if strings.TrimSpace(v) == "" {
			continue
		}
		dst[k] = strings.TrimSpace(v)
	}
}

func parse(values map[string]string) (Config, error) {
	cfg := Config{
		APIOrigin:   strings.TrimRight(values[KeyAPIOrigin], "/"),
		APILocale:   values[KeyAPILocale],
		APIToken:    values[KeyAPIToken],
		ORSAPIKey:   values[KeyORSAPIKey],
		DatabaseURL: values[KeyDatabaseURL],
		RedisURL:    values[KeyRedisURL],
		Port:        values[KeyPort],
		LogLevel:    values[KeyLogLevel],
		JWTSecret:   values[KeyJWTSecret],
		SeedPath:    values[KeySeedPath],
	}

	lat, err := strconv.ParseFloat(values[KeyMapCenterLat], 64)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", KeyMapCenterLat, err)
	}
	lng, err := strconv.ParseFloat(values[KeyMapCenterLng], 64)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", KeyMapCenterLng, err)
	}
	cfg.MapCenter = domain.Coordinates{Lat: lat, Lng: lng}
	if !cfg.MapCenter.Valid() {
		return Config{}, fmt.Errorf("map center %v,%v out of range", lat, lng)
	}

	if cfg.MapZoom, err = atoiMin(values, KeyMapZoom, 0); err != nil {
		return Config{}, err
	}
	if cfg.MapZoom > 22 {
		return Config{}, fmt.Errorf("%s: %d exceeds 22", KeyMapZoom, cfg.MapZoom)
	}
	if cfg.MaxPoints, err = atoiMin(values, KeyMaxPoints, 0); err != nil {
		return Config{}, err
	}
	if cfg.MinPointsInCluster, err = atoiMin(values, KeyMinPointsInCluster, 1); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.Port) == "" {
		return Config{}, fmt.Errorf("%s is required", KeyPort)
	}
	return cfg, nil
}

func atoiMin(values map[string]string, key string, floor int) (int, error) {
	n, err := strconv.Atoi(values[key])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n < floor {
		return 0, fmt.Errorf("%s: %d is below %d", key, n, floor)
	}
	return n, nil
}
