package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLiveFeedSubject(t *testing.T) {
	tests := []struct {
		prefix   string
		dataType string
		expected string
	}{
		{"", "edr", "alertstream.livefeed.edr"},
		{"", "NGAV", "alertstream.livefeed.ngav"},
		{"", "", "alertstream.livefeed.unknown"},
		{"soc.tail", "edr", "soc.tail.edr"},
		{"soc.tail.", " ngav ", "soc.tail.ngav"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, LiveFeedSubject(tt.prefix, tt.dataType))
		})
	}
}
