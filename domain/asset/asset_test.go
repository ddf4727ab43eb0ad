package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOneLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Organic wheat farm, 500 acres", "Organic wheat farm, 500 acres"},
		{"  Organic wheat\nfarm,\r\n500   acres \n", "Organic wheat farm, 500 acres"},
		{"\t\n", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OneLine(tt.in))
	}
}

func TestWithDescription_DoesNotMutate(t *testing.T) {
	a := New("a1", "u1", "text/plain", "gs://bucket/a1.txt")
	b := a.WithDescription("wheat")

	assert.False(t, a.HasDescription())
	assert.Equal(t, "wheat", b.Description())
	assert.Equal(t, a.ID(), b.ID())
	assert.Equal(t, "u1", b.UserID())
}
