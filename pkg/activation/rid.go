package activation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RID strategy names.
const (
	RIDDeterministic = "deterministic"
	RIDRandom        = "random"
)

const ridUnknown = "UNKNOWN"

// RIDGenerator derives the remote ID written when the caller supplies none.
type RIDGenerator interface {
	Generate(operatorID, aircraftID, esn string) string
}

// NewRIDGenerator returns the named strategy. An empty name selects the
// deterministic one.
func NewRIDGenerator(name string) (RIDGenerator, error) {
	switch strings.ToLower(name) {
	case "", RIDDeterministic:
		return DeterministicRID{}, nil
	case RIDRandom:
		return RandomRID{}, nil
	default:
		return nil, fmt.Errorf("unknown RID strategy %q", name)
	}
}

// DeterministicRID builds RID-<OP>-<AC>-<ESN> from the first eight characters
// of each part, upper-cased. The ESN is reduced to [A-Z0-9] first. Empty
// parts read UNKNOWN. Re-activating a module with the same identifiers
// writes the same RID.
type DeterministicRID struct{}

// Generate implements RIDGenerator.
func (DeterministicRID) Generate(operatorID, aircraftID, esn string) string {
	op := strings.ToUpper(prefix(operatorID, 8))
	ac := strings.ToUpper(prefix(aircraftID, 8))
	sn := prefix(strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, strings.ToUpper(esn)), 8)
	return "RID-" + orUnknown(op) + "-" + orUnknown(ac) + "-" + orUnknown(sn)
}

// RandomRID writes a fresh UUID v4 per activation.
type RandomRID struct{}

// Generate implements RIDGenerator.
func (RandomRID) Generate(_, _, _ string) string {
	return "RID-" + strings.ToUpper(uuid.NewString())
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

func orUnknown(s string) string {
	if s == "" {
		return ridUnknown
	}
	return s
}
