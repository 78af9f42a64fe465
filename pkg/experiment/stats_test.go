package experiment

import (
	"math"
	"testing"
)

func TestTwoProportionTestPromoteScenario(t *testing.T) {
	// Control 1000 impressions / 30 conversions, variant 1000 / 45:
	// z ≈ 1.765, directional p ≈ 0.039, significant at alpha 0.05.
	result := TwoProportionTest(1000, 30, 1000, 45)

	if result.Z < 1.7 || result.Z > 1.9 {
		t.Errorf("z = %.4f, want ≈ 1.765", result.Z)
	}
	if result.PValue >= 0.05 {
		t.Errorf("p = %.4f, want < 0.05", result.PValue)
	}
	if result.PValue < 0.01 {
		t.Errorf("p = %.4f suspiciously small, want ≈ 0.039", result.PValue)
	}
	if !result.Significant(0.05) {
		t.Error("scenario must be significant at alpha 0.05")
	}
	if math.Abs(result.Lift-0.015) > 1e-12 {
		t.Errorf("lift = %.6f, want 0.015", result.Lift)
	}
}

func TestTwoProportionTestDirection(t *testing.T) {
	better := TwoProportionTest(1000, 30, 1000, 60)
	if better.Z <= 0 || better.Lift <= 0 {
		t.Errorf("variant above control must give positive z and lift, got z=%.4f lift=%.4f", better.Z, better.Lift)
	}
	if better.PValue >= 0.01 {
		t.Errorf("doubled conversion rate should be strongly significant, p = %.4f", better.PValue)
	}

	worse := TwoProportionTest(1000, 60, 1000, 30)
	if worse.Z >= 0 || worse.Lift >= 0 {
		t.Errorf("variant below control must give negative z and lift, got z=%.4f lift=%.4f", worse.Z, worse.Lift)
	}
	// |z| is symmetric, so the p-values match.
	if math.Abs(worse.PValue-better.PValue) > 1e-12 {
		t.Errorf("p-values should be symmetric: %.6f vs %.6f", worse.PValue, better.PValue)
	}
}

func TestTwoProportionTestIdenticalRates(t *testing.T) {
	result := TwoProportionTest(1000, 30, 1000, 30)
	if result.Z != 0 {
		t.Errorf("identical rates give z = %.4f, want 0", result.Z)
	}
	if result.PValue != 0.5 {
		t.Errorf("identical rates give p = %.4f, want 0.5", result.PValue)
	}
	if result.Significant(0.05) {
		t.Error("identical rates must not be significant")
	}
}

func TestTwoProportionTestDegenerateInputs(t *testing.T) {
	tests := []struct {
		name           string
		n1, c1, n2, c2 uint64
	}{
		{"no control impressions", 0, 0, 1000, 30},
		{"no variant impressions", 1000, 30, 0, 0},
		{"no conversions anywhere", 1000, 0, 1000, 0},
		{"everyone converts", 1000, 1000, 1000, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TwoProportionTest(tt.n1, tt.c1, tt.n2, tt.c2)
			if result.PValue != 1 {
				t.Errorf("p = %.4f, want 1 (never significant)", result.PValue)
			}
			if result.Significant(0.05) {
				t.Error("degenerate input must not be significant")
			}
		})
	}
}

func TestTwoProportionTestDeterministic(t *testing.T) {
	first := TwoProportionTest(5000, 210, 4800, 260)
	second := TwoProportionTest(5000, 210, 4800, 260)
	if first != second {
		t.Errorf("same counters gave different results: %+v vs %+v", first, second)
	}
}
