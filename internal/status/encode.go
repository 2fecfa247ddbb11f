// internal/status/encode.go
package status

// Encode converts a Snapshot into a full bay status block.
// Reserved and name slots are left zero.
// No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerBay)

	regs[SlotStatusCode] = s.StatusCode
	regs[SlotConnected] = s.Connected
	regs[SlotConfidencePct] = s.ConfidencePct
	regs[SlotSecondsInError] = s.SecondsInError

	return regs
}

// EncodeName packs up to BayNameMaxChars ASCII characters into
// SlotBayNameSlots registers, two bytes per register, big-endian.
// Non-printable bytes become '?'.
func EncodeName(name string) []uint16 {
	out := make([]uint16, SlotBayNameSlots)

	b := []byte(name)
	if len(b) > BayNameMaxChars {
		b = b[:BayNameMaxChars]
	}
	for i := range b {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < BayNameMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}
	return out
}
