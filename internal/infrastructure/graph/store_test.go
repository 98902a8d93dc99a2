package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeRelationType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"relates to", "RELATES_TO"},
		{"triggered by", "TRIGGERED_BY"},
		{"TREATS", "TREATS"},
		{"  causes  ", "CAUSES"},
		{"drop;table", "DROPTABLE"},
		{"", "RELATES_TO"},
		{"!!!", "RELATES_TO"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeRelationType(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, "Clinical", sanitizeLabel("Clinical"))
	assert.Equal(t, "Semantic", sanitizeLabel("Sem-antic"))
	assert.Equal(t, "Entity", sanitizeLabel("@#$"))
}

func TestHasLabel(t *testing.T) {
	labels := []any{"Entity", "Clinical"}
	assert.True(t, hasLabel(labels, "Clinical"))
	assert.False(t, hasLabel(labels, "Semantic"))
	assert.False(t, hasLabel("not-a-slice", "Clinical"))
}
