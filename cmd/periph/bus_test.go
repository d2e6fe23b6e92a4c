package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByte(t *testing.T) {
	tests := []struct {
		in   string
		want byte
	}{
		{"0x69", 0x69},
		{"69", 0x69},
		{"6a", 0x6A},
		{"ff", 0xFF},
		{"0", 0x00},
		{"0X21", 0x21},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			got, err := parseByte(test.in)
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
	for _, in := range []string{"", "0x", "0x100", "105", "zz", "-1", "0x0x1"} {
		_, err := parseByte(in)
		assert.Error(t, err, in)
	}
}
