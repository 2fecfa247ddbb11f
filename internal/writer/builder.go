// internal/writer/builder.go
package writer

import (
	cfg "github.com/tamzrod/baywatch/internal/config"
	wmodbus "github.com/tamzrod/baywatch/internal/writer/modbus"
)

// BuildPlans converts bay configs into writer plans.
// Bays without a status slot get a plan with Status == nil.
// Assumes config has already passed validation.
func BuildPlans(c *cfg.Config) []Plan {
	sm := c.Baywatch.StatusMemory
	plans := make([]Plan, 0, len(c.Baywatch.Bays))

	for _, b := range c.Baywatch.Bays {
		p := Plan{BayID: b.ID}
		if b.StatusSlot != nil {
			p.Status = &StatusPlan{
				Endpoint: sm.Endpoint,
				UnitID:   sm.UnitID,
				BaseSlot: *b.StatusSlot,
				BayName:  b.Name,
			}
		}
		plans = append(plans, p)
	}
	return plans
}

// BuildStatusWriters creates the shared endpoint client and one writer per
// exporting bay. With no exporting bay it returns an empty map and a no-op closer.
func BuildStatusWriters(c *cfg.Config) (map[int]StatusWriter, func() error, error) {
	plans := BuildPlans(c)
	writers := make(map[int]StatusWriter)

	enabled := false
	for _, p := range plans {
		if p.Status != nil {
			enabled = true
			break
		}
	}
	if !enabled {
		return writers, func() error { return nil }, nil
	}

	sm := c.Baywatch.StatusMemory
	cli, err := wmodbus.NewEndpointClient(wmodbus.Config{
		Endpoint: sm.Endpoint,
		Timeout:  sm.Timeout(),
	})
	if err != nil {
		return nil, nil, err
	}

	clients := map[string]endpointClient{sm.Endpoint: cli}
	for _, p := range plans {
		if sw, ok := NewBayStatusWriter(p, clients); ok {
			writers[p.BayID] = sw
		}
	}

	return writers, cli.Close, nil
}
