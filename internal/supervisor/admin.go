// internal/supervisor/admin.go
package supervisor

import "github.com/tamzrod/baywatch/internal/occupancy"

// Operator commands. An unknown id mutates nothing.

// ForceAvailable clears the operator hold, resets counters and restarts
// classifier calibration.
func (r *Registry) ForceAvailable(id int) error {
	b, err := r.Get(id)
	if err != nil {
		return err
	}
	b.Tracker.SetOutOfService(false)
	if b.Classifier != nil {
		b.Classifier.Reset()
	}
	return nil
}

// SetOutOfService toggles the operator hold.
func (r *Registry) SetOutOfService(id int, out bool) error {
	b, err := r.Get(id)
	if err != nil {
		return err
	}
	b.Tracker.SetOutOfService(out)
	return nil
}

// ResetCalibration restarts background learning for the bay.
func (r *Registry) ResetCalibration(id int) error {
	b, err := r.Get(id)
	if err != nil {
		return err
	}
	if b.Classifier != nil {
		b.Classifier.Reset()
	}
	return nil
}

// ResetQuality returns the bay's stream to High quality.
func (r *Registry) ResetQuality(id int) error {
	b, err := r.Get(id)
	if err != nil {
		return err
	}
	b.Feed.ResetQuality()
	return nil
}

// ApplyOccupancy pushes new tracker parameters to every bay.
// Nothing is applied if c is invalid.
func (r *Registry) ApplyOccupancy(c occupancy.Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	for _, b := range r.Bays() {
		if err := b.Tracker.SetConfig(c); err != nil {
			return err
		}
	}
	return nil
}
