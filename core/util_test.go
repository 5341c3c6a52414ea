package core

import (
	"math"
	"testing"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		f    float64
		want float64
	}{
		{name: "inside", f: 42.5, want: 42.5},
		{name: "below", f: -3, want: 0},
		{name: "above", f: 120, want: 100},
		{name: "+inf", f: math.Inf(1), want: 100},
		{name: "-inf", f: math.Inf(-1), want: 0},
		{name: "nan", f: math.NaN(), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clamp(tt.f, 0, 100); got != tt.want {
				t.Errorf("Clamp() = %v, want %v", got, tt.want)
			}
		})
	}
}
