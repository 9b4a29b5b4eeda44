package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// GetEnv fetches a key or returns an empty string.
// Required env vars should use this function.
func GetEnv(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	slog.Warn("environment variable not set", "key", key, "critical", true)
	return ""
}

// GetEnvAsStr fetches a key or returns a fallback value.
func GetEnvAsStr(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	slog.Debug("environment variable not set, using fallback", "key", key)
	return fallback
}

// GetEnvAsInt fetches a key as integer, or returns a fallback value when it is
// unset, malformed, or not positive while ensurePositive is set.
func GetEnvAsInt(key string, fallback int, ensurePositive bool) int {
	if valueStr, ok := os.LookupEnv(key); ok {
		if value, err := strconv.Atoi(strings.TrimSpace(valueStr)); err == nil {
			if ensurePositive && value <= 0 {
				slog.Warn("environment variable is not positive, using fallback", "key", key)
				return fallback
			}
			return value
		}
		slog.Warn("environment variable is not an integer, using fallback", "key", key)
		return fallback
	}
	slog.Debug("environment variable not set, using fallback", "key", key)
	return fallback
}

// GetEnvAsBool fetches a key as a boolean (1/0, true/false, yes/no).
func GetEnvAsBool(key string, fallback bool) bool {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(valueStr)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	slog.Warn("environment variable is not a boolean, using fallback", "key", key)
	return fallback
}

// GetEnvAsList splits a comma separated key, dropping empty items.
func GetEnvAsList(key string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
