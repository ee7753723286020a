// Package verification holds the verifier's ruling on an approved claim.
package verification

import (
	"time"

	"github.com/xraph/reimburse/claim"
	"github.com/xraph/reimburse/types"
)

// Verification is created once, when a claim is approved. Rejections leave no
// verification behind.
type Verification struct {
	ClaimID        claim.ID      `json:"claim_id"`
	IsVerified     bool          `json:"is_verified"`
	VerifiedAmount types.Amount  `json:"verified_amount"`
	Verifier       types.Account `json:"verifier"`
	VerifiedAt     time.Time     `json:"verified_at"`
}

// Partial reports whether less than the claimed amount was approved.
func (v *Verification) Partial(c *claim.Claim) bool {
	return v.VerifiedAmount < c.Amount
}
