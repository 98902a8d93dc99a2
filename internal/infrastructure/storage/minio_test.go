package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranscriptObjectName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"episode_1", "transcripts/episode_1.txt"},
		{"GAD session 3", "transcripts/GAD_session_3.txt"},
		{"a/b\\c", "transcripts/a_b_c.txt"},
		{"v2.1-final", "transcripts/v2.1-final.txt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TranscriptObjectName(tt.in), "input %q", tt.in)
	}
}
