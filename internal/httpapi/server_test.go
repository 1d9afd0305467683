package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampTemperature(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want float64
	}{
		{"below range", -1, 0},
		{"zero", 0, 0},
		{"in range", 0.7, 0.7},
		{"upper bound", 2, 2},
		{"above range", 3.5, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := clampTemperature(tc.in)
			assert.Equal(t, tc.want, got)
			// Clamping an already clamped value changes nothing.
			assert.Equal(t, got, clampTemperature(got))
		})
	}
}
