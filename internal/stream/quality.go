// internal/stream/quality.go
package stream

import "fmt"

// Quality is a rung of the degradation ladder. Higher values are worse.
type Quality uint8

const (
	High Quality = iota
	Medium
	Low
)

var qualityNames = [...]string{High: "high", Medium: "medium", Low: "low"}

func (q Quality) String() string {
	if int(q) < len(qualityNames) {
		return qualityNames[q]
	}
	return fmt.Sprintf("quality(%d)", uint8(q))
}

func (q Quality) MarshalText() ([]byte, error) {
	if int(q) >= len(qualityNames) {
		return nil, fmt.Errorf("stream: invalid quality %d", uint8(q))
	}
	return []byte(qualityNames[q]), nil
}

// ParseQuality maps "high", "medium" or "low" to a Quality.
func ParseQuality(name string) (Quality, error) {
	for i, n := range qualityNames {
		if n == name {
			return Quality(i), nil
		}
	}
	return 0, fmt.Errorf("stream: unknown quality %q", name)
}

// Degraded reports whether q is below High.
func (q Quality) Degraded() bool { return q > High }

// next returns the rung below q, flooring at Low.
func (q Quality) next() Quality {
	if q >= Low {
		return Low
	}
	return q + 1
}

// Level is the transport settings of one rung.
type Level struct {
	FPS        int
	BufferSize int
}

// Ladder holds one Level per Quality.
type Ladder [3]Level

// DefaultLadder is the stock table.
var DefaultLadder = Ladder{
	High:   {FPS: 10, BufferSize: 1},
	Medium: {FPS: 5, BufferSize: 2},
	Low:    {FPS: 2, BufferSize: 3},
}

// failuresBeforeDegrade is the number of consecutive connect failures
// after which the connection drops one rung.
const failuresBeforeDegrade = 3
