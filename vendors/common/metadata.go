package common

import (
	"strconv"
	"strings"
	"time"
)

// MetadataString retrieves a string value from device metadata with optional fallback keys.
// Keys are checked in order - first match wins.
func MetadataString(metadata map[string]string, keys ...string) (string, bool) {
	if metadata == nil {
		return "", false
	}
	for _, key := range keys {
		if value, ok := metadata[key]; ok {
			return value, true
		}
	}
	return "", false
}

// MetadataStringDefault retrieves a string from metadata, or returns defaultValue.
func MetadataStringDefault(metadata map[string]string, defaultValue string, keys ...string) string {
	if value, ok := MetadataString(metadata, keys...); ok {
		return value
	}
	return defaultValue
}

// MetadataInt retrieves an integer value from metadata. Unparseable values are skipped.
func MetadataInt(metadata map[string]string, defaultValue int, keys ...string) int {
	for _, key := range keys {
		if raw, ok := MetadataString(metadata, key); ok {
			if value, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
				return value
			}
		}
	}
	return defaultValue
}

// MetadataDuration retrieves a duration ("30s", "2m") from metadata.
func MetadataDuration(metadata map[string]string, defaultValue time.Duration, keys ...string) time.Duration {
	for _, key := range keys {
		if raw, ok := MetadataString(metadata, key); ok {
			if value, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil {
				return value
			}
		}
	}
	return defaultValue
}

// MetadataBool retrieves a boolean from metadata.
func MetadataBool(metadata map[string]string, defaultValue bool, keys ...string) bool {
	for _, key := range keys {
		if raw, ok := MetadataString(metadata, key); ok {
			if value, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
				return value
			}
		}
	}
	return defaultValue
}
