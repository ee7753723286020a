// Package claim defines reimbursement claims filed against a subscription and
// the one-directional status machine they move through.
package claim

import (
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
)

// ID is a sequential claim number, starting at 1.
type ID uint64

func (i ID) String() string { return strconv.FormatUint(uint64(i), 10) }

// ParseID parses a decimal claim id. Zero is rejected.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, strconv.ErrRange
	}
	return ID(v), nil
}

// Status is the position of a claim in its lifecycle. The numeric values are
// stable and persisted.
type Status uint8

const (
	StatusPending     Status = 0
	StatusUnderReview Status = 1
	StatusApproved    Status = 2
	StatusRejected    Status = 3
	StatusPaid        Status = 4
)

var statusNames = [...]string{
	StatusPending:     "pending",
	StatusUnderReview: "under_review",
	StatusApproved:    "approved",
	StatusRejected:    "rejected",
	StatusPaid:        "paid",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return int(s) < len(statusNames) }

// ParseStatus accepts either the name ("approved") or the numeric form ("2").
func ParseStatus(v string) (Status, error) {
	for i, name := range statusNames {
		if name == v {
			return Status(i), nil
		}
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < len(statusNames) {
		return Status(n), nil
	}
	return 0, fmt.Errorf("claim: unknown status %q", v)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("claim: unknown status %d", s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(data []byte) error {
	parsed, err := ParseStatus(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// transitions lists the statuses reachable from each status. Rejected and
// Paid are terminal.
var transitions = map[Status][]Status{
	StatusPending:     {StatusUnderReview, StatusApproved, StatusRejected},
	StatusUnderReview: {StatusApproved, StatusRejected},
	StatusApproved:    {StatusPaid},
}

// CanTransition reports whether a claim in s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

type Claim struct {
	types.Entity
	ID                ID              `json:"id"`
	Claimant          types.Account   `json:"claimant"`
	SubscriptionID    subscription.ID `json:"subscription_id"`
	Amount            types.Amount    `json:"amount"`
	DocumentReference string          `json:"document_reference"`
	Status            Status          `json:"status"`
	RejectionReason   string          `json:"rejection_reason,omitempty"`
	ProcessingFee     types.Amount    `json:"processing_fee"`
	DecidedAt         *time.Time      `json:"decided_at,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
}

// ListOpts filters a claim listing. A nil Status lists every claim.
type ListOpts struct {
	Status *Status
	Limit  int
	Offset int
}

// Matches reports whether c passes the status filter.
func (o ListOpts) Matches(c *Claim) bool {
	return o.Status == nil || c.Status == *o.Status
}

// Stats summarizes the claims filed by one account.
type Stats struct {
	Total        int          `json:"total"`
	Pending      int          `json:"pending"` // pending or under review
	Approved     int          `json:"approved"`
	Rejected     int          `json:"rejected"`
	Paid         int          `json:"paid"`
	AmountPaid   types.Amount `json:"amount_paid"`
	ApprovalRate float64      `json:"approval_rate"`
}

// Add counts c. paid is the amount reimbursed for c and is ignored unless
// c has been paid.
func (s *Stats) Add(c *Claim, paid types.Amount) error {
	switch c.Status {
	case StatusPending, StatusUnderReview:
		s.Pending++
	case StatusApproved:
		s.Approved++
	case StatusRejected:
		s.Rejected++
	case StatusPaid:
		total, err := s.AmountPaid.CheckedAdd(paid)
		if err != nil {
			return err
		}
		s.AmountPaid = total
		s.Paid++
	}
	s.Total++

	// Paid claims were approved first.
	if decided := s.Approved + s.Paid + s.Rejected; decided > 0 {
		s.ApprovalRate = float64(s.Approved+s.Paid) / float64(decided)
	}
	return nil
}
