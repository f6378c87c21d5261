package ext

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator defines contract for generating scan run identifiers.
type IDGenerator interface {
	// GenerateID generates a new identifier.
	GenerateID() string
}

// NewGoogleUUIDGenerator constructs a new IDGenerator implemented with Google's UUID module.
func NewGoogleUUIDGenerator() IDGenerator {
	return googleUUIDGenerator{}
}

type googleUUIDGenerator struct{}

func (googleUUIDGenerator) GenerateID() string {
	return uuid.New().String()
}

// NewSimpleIDGenerator constructs a predictable IDGenerator that starts at 1,
// increments up to 999999999999, and then rolls over. It is meant for tests.
func NewSimpleIDGenerator() IDGenerator {
	return &simpleIDGenerator{}
}

// simpleIDRollover is the first value which does not fit the last 12 digits.
const simpleIDRollover = 1000000000000

type simpleIDGenerator struct {
	leastSigBits atomic.Uint64
}

func (g *simpleIDGenerator) GenerateID() string {
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", g.leastSigBits.Add(1)%simpleIDRollover)
}
