// internal/config/reload.go
package config

// ReloadOccupancy re-reads the environment on top of cur and returns the
// occupancy section that would result. cur is not modified.
//
// Only occupancy parameters can change at runtime; stream, bus and API
// settings need a restart and are left as loaded.
func ReloadOccupancy(cur *Config, lookup LookupEnv) (OccupancyConfig, error) {
	next := clone(cur)

	ApplyEnv(next, lookup)
	Defaults(next)
	if err := Validate(next); err != nil {
		return OccupancyConfig{}, err
	}
	return next.Baywatch.Occupancy, nil
}

// WithOccupancy returns a copy of cur carrying occ.
func WithOccupancy(cur *Config, occ OccupancyConfig) *Config {
	next := clone(cur)
	next.Baywatch.Occupancy = occ
	return next
}

// clone copies everything ApplyEnv and Defaults may write to.
func clone(cur *Config) *Config {
	next := &Config{}
	if cur != nil {
		*next = *cur
	}
	b := &next.Baywatch

	b.Bays = append([]BayConfig(nil), b.Bays...)
	if b.Stream.QualityLevels != nil {
		levels := make(map[string]QualityConfig, len(b.Stream.QualityLevels))
		for k, v := range b.Stream.QualityLevels {
			levels[k] = v
		}
		b.Stream.QualityLevels = levels
	}
	b.Occupancy.ConnectionGracePeriodS = copyInt(b.Occupancy.ConnectionGracePeriodS)
	b.Monitor.AssumedDowntimePerReconnectS = copyInt(b.Monitor.AssumedDowntimePerReconnectS)
	return next
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
