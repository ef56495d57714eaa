package protocol

import "strings"

var successTokens = []string{"SUCCESS", "[SUCCESS]", "STORED"}

// Classification is the verdict on a BASIC_SET answer.
type Classification struct {
	// Accepted is always true: modules that store the values do not reliably
	// say so, and a silent module has usually stored them.
	Accepted bool

	// LooksSuccessful reports whether the answer carries a success token.
	LooksSuccessful bool
}

// LooksSuccessful reports whether raw contains a success token,
// case-insensitively.
func LooksSuccessful(raw []byte) bool {
	up := strings.ToUpper(string(raw))
	for _, tok := range successTokens {
		if strings.Contains(up, tok) {
			return true
		}
	}
	return false
}

// Classify applies the permissive acceptance policy to a BASIC_SET answer.
func Classify(raw []byte) Classification {
	return Classification{Accepted: true, LooksSuccessful: LooksSuccessful(raw)}
}
