// internal/writer/modbus/client.go
package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// DefaultIdleTimeout closes the TCP link after this long without a write.
// Polls happen every second, so the link only idles out when every exporting
// bay has stopped writing; the next write redials.
const DefaultIdleTimeout = 60 * time.Second

// MaxWriteRegisters is the FC16 quantity limit.
const MaxWriteRegisters = 123

// Config addresses one status-memory endpoint.
type Config struct {
	Endpoint    string
	Timeout     time.Duration // per request
	IdleTimeout time.Duration // zero means DefaultIdleTimeout
}

// EndpointClient writes bay status blocks to one status-memory endpoint.
//
// All bays on the endpoint share it. Writes are serialized since the unit
// id is carried on the handler. The TCP link is dialed on the first write
// and again after it drops or idles out.
type EndpointClient struct {
	endpoint string

	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

func NewEndpointClient(cfg Config) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("status modbus: endpoint required")
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	h.IdleTimeout = idle

	return &EndpointClient{
		endpoint: cfg.Endpoint,
		handler:  h,
		client:   modbus.NewClient(h),
	}, nil
}

// WriteRegisters writes holding registers (FC16) for unitID starting at addr.
func (c *EndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	switch {
	case len(regs) == 0:
		return nil
	case len(regs) > MaxWriteRegisters:
		return fmt.Errorf("status modbus %s: %d registers exceeds FC16 limit %d", c.endpoint, len(regs), MaxWriteRegisters)
	case int(addr)+len(regs) > 1<<16:
		return fmt.Errorf("status modbus %s: write at %d+%d overflows address space", c.endpoint, addr, len(regs))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID
	if _, err := c.client.WriteMultipleRegisters(addr, uint16(len(regs)), encodeRegisters(regs)); err != nil {
		return fmt.Errorf("status modbus %s unit=%d addr=%d: %w", c.endpoint, unitID, addr, err)
	}
	return nil
}

func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// encodeRegisters lays registers out big-endian as the wire expects.
func encodeRegisters(regs []uint16) []byte {
	out := make([]byte, 2*len(regs))
	for i, r := range regs {
		binary.BigEndian.PutUint16(out[2*i:], r)
	}
	return out
}
