package mathx_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/nasa-jpl/scopesync/mathx"
)

func ExampleRound() {
	fmt.Println(mathx.Round(2.3, 0.5), mathx.Round(-1.3, 0.5))
	// Output: 2.5 -1.5
}

func ExampleArange() {
	fmt.Println(mathx.Arange(-1, 0.5, 5))
	// Output: [-1 -0.5 0 0.5 1]
}

func TestMean(t *testing.T) {
	if m := mathx.Mean([]float64{1, 2, 3, 4}); m != 2.5 {
		t.Errorf("expected 2.5, got %f", m)
	}
	if m := mathx.Mean(nil); !math.IsNaN(m) {
		t.Errorf("expected NaN for empty input, got %f", m)
	}
}

func TestPeakToPeak(t *testing.T) {
	if p := mathx.PeakToPeak([]float64{-3, 1, 7, 2}); p != 10 {
		t.Errorf("expected 10, got %f", p)
	}
	if p := mathx.PeakToPeak([]float64{}); p != 0 {
		t.Errorf("expected 0 for empty input, got %f", p)
	}
}
