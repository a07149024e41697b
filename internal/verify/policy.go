package verify

import "github.com/wardenhq/warden/internal/types"

// ScorePolicyDisabledCountsAsPass: a disabled check contributes its full
// weight to the confidence score and can never veto.
//
// This mirrors the behavior the rest of the system was tuned against:
// operators who disable a check are treated as vouching for it. The obvious
// hazard is that disabling build and tests yields 0.80 free confidence, so
// one passing lint run plus a related-file touch clears the threshold with
// nothing actually verified. Changing this to score disabled checks as zero
// would require re-tuning the threshold; until then the policy stays.
func ScorePolicyDisabledCountsAsPass(kind types.CheckKind, weight float64) (credit float64, result types.CheckResult) {
	return weight, types.CheckResult{
		Kind:    kind,
		Enabled: false,
		Passed:  true,
	}
}
