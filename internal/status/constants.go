// internal/status/constants.go
package status

// Bay Status Block layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerBay is the fixed number of holding registers per bay.
const SlotsPerBay = 20

// MaxSlot is the highest status_slot whose block fits in the 16-bit
// holding register address space.
const MaxSlot = (1<<16 - SlotsPerBay) / SlotsPerBay

// ---- SLOT INDICES ----

// SlotStatusCode holds the occupancy status code.
const SlotStatusCode = 0

// SlotConnected is 1 while the camera link is up, 0 otherwise.
const SlotConnected = 1

// SlotConfidencePct holds the last detection confidence, 0..100.
const SlotConfidencePct = 2

// SlotSecondsInError holds how long the bay has been in connectionError.
const SlotSecondsInError = 3

// ---- RESERVED RANGE ----

// Slots 4-10 are reserved for future use.
const SlotReservedStart = 4
const SlotReservedEnd = 10

// ---- BAY NAME ----

// SlotBayNameStart is the first slot used for the bay name.
const SlotBayNameStart = 11

// SlotBayNameSlots is the number of slots reserved for the bay name.
const SlotBayNameSlots = 8

// SlotBayNameEnd is the last slot used for the bay name (inclusive).
const SlotBayNameEnd = SlotBayNameStart + SlotBayNameSlots - 1

// ---- LIMITS ----

// BayNameMaxChars is the maximum number of ASCII characters stored for the name.
const BayNameMaxChars = 16

// MaxSecondsInError is where SlotSecondsInError saturates.
const MaxSecondsInError = 65535

// ---- STATUS CODES ----

// CodeUnknown is the boot value before the first sample.
const CodeUnknown uint16 = 0

const CodeAvailable uint16 = 1
const CodeInUse uint16 = 2
const CodeOutOfService uint16 = 3
const CodeConnectionError uint16 = 4
