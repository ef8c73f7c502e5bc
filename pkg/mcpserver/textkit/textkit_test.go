package textkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	s := NewServer()
	require.NotNil(t, s)
}

func TestReverseString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc", "cba"},
		{"", ""},
		{"a", "a"},
		{"héllo", "olléh"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reverseString(tt.in))
	}
}
