// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tamzrod/baywatch/internal/status"
)

// StatusWriter is the delivery-only contract for bay status.
// It receives a snapshot and writes it verbatim.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// bayStatusWriter owns one bay's block in status memory.
type bayStatusWriter struct {
	mu sync.Mutex

	plan *StatusPlan
	cli  endpointClient

	needFull bool
	last     status.Snapshot
	nameRegs []uint16
}

// NewBayStatusWriter builds a status writer if export is enabled for the bay.
// If plan.Status is nil, export is disabled.
func NewBayStatusWriter(plan Plan, clients map[string]endpointClient) (*bayStatusWriter, bool) {
	if plan.Status == nil {
		return nil, false
	}

	sp := plan.Status
	if sp.BaseSlot > status.MaxSlot {
		return nil, false
	}
	return &bayStatusWriter{
		plan:     sp,
		cli:      clients[sp.Endpoint],
		needFull: true, // full re-assert on first successful write
		last:     status.Snapshot{StatusCode: status.CodeUnknown},
		nameRegs: status.EncodeName(sp.BayName),
	}, true
}

// WriteStatus delivers a bay status snapshot into status memory.
// Only changed slots are written after the first full block.
// On any write failure, the next call re-asserts the full block.
func (sw *bayStatusWriter) WriteStatus(s status.Snapshot) error {
	if sw == nil || sw.plan == nil {
		return errors.New("status writer: disabled")
	}
	if sw.cli == nil {
		return fmt.Errorf("status writer: missing client for endpoint %s", sw.plan.Endpoint)
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	base := sw.baseAddr()
	unitID := sw.plan.UnitID

	// ---- full block write (identity re-assert) ----
	if sw.needFull {
		if err := sw.cli.WriteRegisters(unitID, base, sw.fullBlockRegs(s)); err != nil {
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}
		sw.needFull = false
		sw.last = s
		return nil
	}

	// ---- incremental ----
	slots := []struct {
		name string
		slot uint16
		cur  *uint16
		next uint16
	}{
		{"status_code", status.SlotStatusCode, &sw.last.StatusCode, s.StatusCode},
		{"connected", status.SlotConnected, &sw.last.Connected, s.Connected},
		{"confidence_pct", status.SlotConfidencePct, &sw.last.ConfidencePct, s.ConfidencePct},
		{"seconds_in_error", status.SlotSecondsInError, &sw.last.SecondsInError, s.SecondsInError},
	}

	var errs []string
	for _, sl := range slots {
		if *sl.cur == sl.next {
			continue
		}
		if err := sw.cli.WriteRegisters(unitID, base+sl.slot, []uint16{sl.next}); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d %s write failed: %v", sl.slot, sl.name, err))
			continue
		}
		*sl.cur = sl.next
	}

	if len(errs) > 0 {
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}
	return nil
}

func (sw *bayStatusWriter) baseAddr() uint16 {
	return sw.plan.BaseSlot * status.SlotsPerBay
}

func (sw *bayStatusWriter) fullBlockRegs(s status.Snapshot) []uint16 {
	regs := status.Encode(s)
	copy(regs[status.SlotBayNameStart:status.SlotBayNameEnd+1], sw.nameRegs)
	return regs
}
