// internal/writer/types.go
package writer

// StatusPlan locates one bay's status block in status memory.
type StatusPlan struct {
	Endpoint string
	UnitID   uint8
	BaseSlot uint16
	BayName  string
}

// Plan is the fully-built write plan for one bay.
type Plan struct {
	BayID  int
	Status *StatusPlan // nil => export disabled for this bay
}

// endpointClient is the write surface of one status-memory endpoint.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}
