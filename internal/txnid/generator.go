package txnid

import "github.com/google/uuid"

// Generator mints fresh transaction IDs. It is the "object-ID generation
// primitive" spec.md scopes out of the core's responsibility; this package
// supplies a concrete default so the rest of the module has something to
// run against, behind an interface so a real cluster-wide allocator can be
// substituted without touching plan code.
type Generator interface {
	// Generate mints a fresh Id attributed to cellTag with the given
	// object kind. It must never collide with a previously generated ID.
	Generate(kind ObjectKind, cellTag CellTag) Id
}

// UUIDGenerator fills new IDs with entropy from google/uuid's random (v4)
// generator. Only bytes 0-3 and 8-15 of each UUID are used (96 bits, two
// of them the fixed variant bits), so the collision probability is that of
// roughly 94 random bits rather than UUIDv4's 122.
type UUIDGenerator struct{}

// NewUUIDGenerator returns the default Generator.
func NewUUIDGenerator() UUIDGenerator { return UUIDGenerator{} }

// Generate implements Generator.
func (UUIDGenerator) Generate(kind ObjectKind, cellTag CellTag) Id {
	u := uuid.New()
	entropyHi := uint64(u[0])<<24 | uint64(u[1])<<16 | uint64(u[2])<<8 | uint64(u[3])
	entropyLo := uint64(u[8])<<56 | uint64(u[9])<<48 | uint64(u[10])<<40 | uint64(u[11])<<32 |
		uint64(u[12])<<24 | uint64(u[13])<<16 | uint64(u[14])<<8 | uint64(u[15])
	return newId(kind, cellTag, entropyHi, entropyLo)
}
