package critical

import "math"

// ratioEpsilon absorbs floating point error, so 10*0.7 requires 7 pages.
const ratioEpsilon = 1e-9

// SuccessPolicy decides how many pages must be processed successfully for
// generation to succeed.
type SuccessPolicy struct {
	Required int
}

// NewSuccessPolicy computes ceil(total*ratio). Ratio outside of (0, 1] is
// treated as 1.
func NewSuccessPolicy(total int, ratio float64) SuccessPolicy {
	if math.IsNaN(ratio) || ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	required := int(math.Ceil(float64(total)*ratio - ratioEpsilon))
	if total > 0 && required < 1 {
		required = 1
	}
	return SuccessPolicy{Required: required}
}

// Reached reports if n successful pages are enough.
func (p SuccessPolicy) Reached(n int) bool {
	return n >= p.Required
}

// Check returns *ThresholdError with per page errors when valid is below
// requirement.
func (p SuccessPolicy) Check(valid int, errs map[string]error) error {
	if p.Reached(valid) {
		return nil
	}
	return &ThresholdError{Required: p.Required, Succeeded: valid, Errors: errs}
}
