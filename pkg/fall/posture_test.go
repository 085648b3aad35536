package fall

import (
	"math"
	"testing"
)

func TestAspectRatio(t *testing.T) {
	tests := []struct {
		name   string
		box    Box
		expect float64
	}{
		{name: "standing", box: Box{X1: 100, Y1: 50, X2: 200, Y2: 350}, expect: 3.0},
		{name: "lying", box: Box{X1: 0, Y1: 0, X2: 300, Y2: 90}, expect: 0.3},
		{name: "square", box: Box{X1: 10, Y1: 10, X2: 60, Y2: 60}, expect: 1.0},
		{name: "zero width", box: Box{X1: 40, Y1: 0, X2: 40, Y2: 100}, expect: 0},
		{name: "inverted width", box: Box{X1: 50, Y1: 0, X2: 10, Y2: 100}, expect: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := AspectRatio(tc.box)
			if math.Abs(got-tc.expect) > 1e-9 {
				t.Errorf("AspectRatio: got %.4f, want %.4f", got, tc.expect)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name      string
		box       Box
		expectFal bool
	}{
		{name: "lying confident", box: Box{X2: 100, Y2: 30, Confidence: 0.9}, expectFal: true},
		{name: "lying low confidence", box: Box{X2: 100, Y2: 30, Confidence: 0.4}, expectFal: false},
		{name: "lying at confidence gate", box: Box{X2: 100, Y2: 30, Confidence: 0.5}, expectFal: false},
		{name: "ratio at threshold", box: Box{X2: 100, Y2: 50, Confidence: 0.9}, expectFal: false},
		{name: "standing", box: Box{X2: 100, Y2: 120, Confidence: 0.9}, expectFal: false},
		{name: "zero width confident", box: Box{X1: 5, X2: 5, Y2: 100, Confidence: 0.99}, expectFal: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sig := Classify(tc.box, th)
			if sig.IsFall != tc.expectFal {
				t.Errorf("IsFall: got %v, want %v (ratio %.2f)", sig.IsFall, tc.expectFal, sig.AspectRatio)
			}
		})
	}
}

func TestClassify_ZeroWidthNeverFalls(t *testing.T) {
	th := DefaultThresholds()
	for h := -50.0; h <= 500; h += 25 {
		for conf := 0.0; conf <= 1.0; conf += 0.1 {
			sig := Classify(Box{X1: 10, Y1: 0, X2: 10, Y2: h, Confidence: conf}, th)
			if sig.AspectRatio != 0 {
				t.Fatalf("AspectRatio: got %v, want 0 for height %v", sig.AspectRatio, h)
			}
			if sig.IsFall {
				t.Fatalf("IsFall: got true for zero-width box (height %v, conf %v)", h, conf)
			}
		}
	}
}

func TestClassify_CustomThresholds(t *testing.T) {
	th := Thresholds{MinConfidence: 0.8, FallRatio: 0.7}
	box := Box{X2: 100, Y2: 60, Confidence: 0.85}

	sig := Classify(box, th)
	if !sig.IsFall {
		t.Errorf("Expected ratio 0.6 with conf 0.85 to be a fall under custom thresholds")
	}

	if Classify(box, DefaultThresholds()).IsFall {
		t.Errorf("Expected ratio 0.6 not to be a fall under default thresholds")
	}
}
