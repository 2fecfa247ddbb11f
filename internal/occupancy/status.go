// internal/occupancy/status.go
package occupancy

import "fmt"

// Status is the closed set of bay states.
type Status uint8

const (
	Available Status = iota
	InUse
	OutOfService
	ConnectionError
)

var statusNames = [...]string{
	Available:       "available",
	InUse:           "inUse",
	OutOfService:    "outOfService",
	ConnectionError: "connectionError",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Valid reports whether s is one of the four defined states.
func (s Status) Valid() bool {
	return int(s) < len(statusNames)
}

// MarshalText renders the wire name used by API and event consumers.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("occupancy: invalid status %d", uint8(s))
	}
	return []byte(statusNames[s]), nil
}

// UnmarshalText accepts only the four wire names.
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStatus maps a wire name back to a Status.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("occupancy: unknown status %q", name)
}
