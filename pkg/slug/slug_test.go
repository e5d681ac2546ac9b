package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Fashion", "fashion"},
		{"ELECTRONICS", "electronics"},
		{"Home & Kitchen", "home-and-kitchen"},
		{"  Smart   Phones! ", "smart-phones"},
		{"Café Décor", "cafe-decor"},
		{"best_sellers", "best-sellers"},
		{"---", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Generate(tt.input))
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("mobile", "Mobile"))
	assert.True(t, Equal("Home & Kitchen", "home and kitchen"))
	assert.False(t, Equal("Mobile", "Mobiles"))
}
