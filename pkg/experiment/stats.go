package experiment

import "math"

// TestResult is one pooled two-proportion z-test of a variant against the
// control.
type TestResult struct {
	// Z is the test statistic. Positive when the variant's rate exceeds
	// control's.
	Z float64

	// PValue is the directional (one-sided) p-value for the observed
	// direction: P(rate difference at least this large | no true
	// difference). Both promotion and retirement test a directional
	// hypothesis, so the one-sided p is the right gate for either.
	PValue float64

	// Lift is the variant's conversion rate minus control's.
	Lift float64
}

// Significant reports whether the test clears the given significance level.
func (r TestResult) Significant(alpha float64) bool {
	return r.PValue < alpha
}

// TwoProportionTest compares a variant's conversions against the control's
// with a pooled two-proportion z-test.
//
//	p̂  = (c1+c2) / (n1+n2)
//	z  = (p2−p1) / sqrt(p̂(1−p̂)(1/n1+1/n2))
//	p  = erfc(|z|/√2) / 2
//
// Degenerate inputs (either side without impressions, or a pooled rate of
// exactly 0 or 1, where the test has no variance to work with) return
// z=0, p=1: never significant, so the caller keeps collecting.
func TwoProportionTest(controlImpressions, controlConversions, variantImpressions, variantConversions uint64) TestResult {
	if controlImpressions == 0 || variantImpressions == 0 {
		return TestResult{PValue: 1}
	}

	n1 := float64(controlImpressions)
	n2 := float64(variantImpressions)
	p1 := float64(controlConversions) / n1
	p2 := float64(variantConversions) / n2
	lift := p2 - p1

	pooled := (float64(controlConversions) + float64(variantConversions)) / (n1 + n2)
	variance := pooled * (1 - pooled) * (1/n1 + 1/n2)
	if variance <= 0 {
		return TestResult{PValue: 1, Lift: lift}
	}

	z := lift / math.Sqrt(variance)
	p := 0.5 * math.Erfc(math.Abs(z)/math.Sqrt2)

	return TestResult{Z: z, PValue: p, Lift: lift}
}
