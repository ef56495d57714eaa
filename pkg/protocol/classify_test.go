package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rsas-protocol/rsas-go/pkg/protocol"
)

func TestClassifyIsPermissive(t *testing.T) {
	tests := []struct {
		raw   string
		looks bool
	}{
		{"", false},
		{"ERROR: flash write failed", false},
		{"[SUCCESS] values written", true},
		{"stored", true},
		{"Config Success", true},
		{"OK", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			c := protocol.Classify([]byte(tt.raw))
			assert.True(t, c.Accepted, "every answer is accepted")
			assert.Equal(t, tt.looks, c.LooksSuccessful)
		})
	}
}
