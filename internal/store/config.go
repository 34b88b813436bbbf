package store

import (
	"os"
	"strconv"
	"strings"
)

// defaultExtensions is the extension set used when SWS_EXTENSIONS is unset.
// These are the record-segment extensions, so segment files land in the
// primary store and everything else in the secondary by default.
var defaultExtensions = []string{"fdt", "fdx", "fdm"}

// SwitchConfig holds the composite store wiring loaded from environment
// variables.
type SwitchConfig struct {
	PrimaryPath           string   // Primary store root directory (SWS_PRIMARY)
	SecondaryPath         string   // Secondary store root directory (SWS_SECONDARY)
	Extensions            []string // Routed extension set (SWS_EXTENSIONS, comma-separated, default fdt,fdx,fdm)
	PrimaryOwnsExtensions bool     // Extension-set members route to primary (SWS_PRIMARY_OWNS, default true)
	WriteRateLimit        float64  // Output throttle in bytes/sec, 0 disables (SWS_WRITE_RATE_LIMIT)
}

// LoadSwitchConfigFromEnv loads composite store configuration from
// environment variables.
func LoadSwitchConfigFromEnv() *SwitchConfig {
	cfg := &SwitchConfig{
		PrimaryPath:           os.Getenv("SWS_PRIMARY"),
		SecondaryPath:         os.Getenv("SWS_SECONDARY"),
		Extensions:            defaultExtensions,
		PrimaryOwnsExtensions: true,
	}

	if extStr := os.Getenv("SWS_EXTENSIONS"); extStr != "" {
		cfg.Extensions = ParseExtensions(extStr)
	}

	if ownsStr := os.Getenv("SWS_PRIMARY_OWNS"); ownsStr != "" {
		cfg.PrimaryOwnsExtensions = parseBoolEnv(ownsStr)
	}

	if rateStr := os.Getenv("SWS_WRITE_RATE_LIMIT"); rateStr != "" {
		if rateVal, err := strconv.ParseFloat(rateStr, 64); err == nil && rateVal >= 0 {
			cfg.WriteRateLimit = rateVal
		}
	}

	return cfg
}

// IsValid returns true if the configuration can build a composite store.
func (c *SwitchConfig) IsValid() bool {
	return c.PrimaryPath != "" && c.SecondaryPath != ""
}

// Build opens both local stores and assembles the composite. The returned
// SwitchStore owns both stores; closing it closes them.
func (c *SwitchConfig) Build(opts ...LocalStoreOption) (*SwitchStore, error) {
	localOpts := opts
	if c.WriteRateLimit > 0 {
		localOpts = append([]LocalStoreOption{WithWriteRateLimit(c.WriteRateLimit)}, opts...)
	}

	primary, err := NewLocalStore(c.PrimaryPath, localOpts...)
	if err != nil {
		return nil, err
	}

	secondary, err := NewLocalStore(c.SecondaryPath, localOpts...)
	if err != nil {
		_ = primary.Close()
		return nil, err
	}

	return NewSwitchStore(c.Extensions, primary, secondary, c.PrimaryOwnsExtensions), nil
}

// ParseExtensions splits a comma-separated extension list, trimming
// whitespace and leading dots and dropping empty entries.
func ParseExtensions(val string) []string {
	parts := strings.Split(val, ",")
	exts := make([]string, 0, len(parts))
	for _, part := range parts {
		ext := strings.TrimPrefix(strings.TrimSpace(part), ".")
		if ext == "" {
			continue
		}
		exts = append(exts, ext)
	}
	return exts
}

// parseBoolEnv parses a boolean environment variable value.
func parseBoolEnv(val string) bool {
	val = strings.ToLower(val)
	return val == "true" || val == "1" || val == "yes"
}
