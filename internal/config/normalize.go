// internal/config/normalize.go
package config

import (
	"sort"
	"strings"
)

// BayNameMaxChars matches the name capacity of the status block.
const BayNameMaxChars = 16

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	b := &cfg.Baywatch

	// Bays are processed in ascending id order everywhere downstream.
	sort.Slice(b.Bays, func(i, j int) bool { return b.Bays[i].ID < b.Bays[j].ID })

	for i := range b.Bays {
		bay := &b.Bays[i]

		// Name is ASCII already; truncate to the status block capacity.
		if len(bay.Name) > BayNameMaxChars {
			bay.Name = bay.Name[:BayNameMaxChars]
		}
		bay.URL = strings.TrimSpace(bay.URL)
	}

	b.Log.Level = strings.ToLower(b.Log.Level)
	b.BayCount = len(b.Bays)
}

// Prepare runs the full post-load pipeline: env overrides, defaults,
// validation and normalization.
func Prepare(cfg *Config, lookup LookupEnv) error {
	ApplyEnv(cfg, lookup)
	Defaults(cfg)
	if err := Validate(cfg); err != nil {
		return err
	}
	Normalize(cfg)
	return nil
}
