// Package decision holds the approve/reject rule applied to every transaction.
package decision

import "payment-relay/pkg/types"

// Threshold is the first amount that gets rejected.
const Threshold = 100.0

// Decide maps an amount to a verdict. Amounts are expected in cents precision.
func Decide(amount float64) types.Status {
	if amount < Threshold {
		return types.StatusApproved
	}
	return types.StatusRejected
}
