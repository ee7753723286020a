// Package subscription defines insurance subscriptions: a monthly premium
// buying a coverage band [Deductible, CoverageLimit] for a fixed period.
package subscription

import (
	"strconv"
	"time"

	"github.com/xraph/reimburse/types"
)

// Period is the length of coverage bought by one creation or renewal.
const Period = 30 * 24 * time.Hour

// ID is a sequential subscription number, starting at 1.
type ID uint64

func (i ID) String() string { return strconv.FormatUint(uint64(i), 10) }

// ParseID parses a decimal subscription id. Zero is rejected.
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

type Status string

const (
	StatusActive   Status = "active"
	StatusLapsed   Status = "lapsed"
	StatusCanceled Status = "canceled"
)

type Subscription struct {
	types.Entity
	ID            ID            `json:"id"`
	Subscriber    types.Account `json:"subscriber"`
	MonthlyFee    types.Amount  `json:"monthly_fee"`
	CoverageLimit types.Amount  `json:"coverage_limit"`
	Deductible    types.Amount  `json:"deductible"`
	StartDate     time.Time     `json:"start_date"`
	EndDate       time.Time     `json:"end_date"`
	IsActive      bool          `json:"is_active"`
	CanceledAt    *time.Time    `json:"canceled_at,omitempty"`
}

// ValidTerms reports whether the coverage band is non-empty.
func ValidTerms(coverageLimit, deductible types.Amount) bool {
	return coverageLimit > deductible
}

// Lapsed reports whether the paid period ended before now.
func (s *Subscription) Lapsed(now time.Time) bool {
	return now.After(s.EndDate)
}

// Status derives the subscription state at now. Lapse is evaluated lazily;
// nothing in storage flips when the period runs out.
func (s *Subscription) Status(now time.Time) Status {
	switch {
	case !s.IsActive:
		return StatusCanceled
	case s.Lapsed(now):
		return StatusLapsed
	default:
		return StatusActive
	}
}

// Covering reports whether claims may be filed against the subscription at now.
func (s *Subscription) Covering(now time.Time) bool {
	return s.Status(now) == StatusActive
}

func (s *Subscription) BelowDeductible(amount types.Amount) bool {
	return amount < s.Deductible
}

func (s *Subscription) ExceedsCoverage(amount types.Amount) bool {
	return amount > s.CoverageLimit
}

// Extend pushes EndDate forward by one Period from the current EndDate, so
// unused coverage carries over.
func (s *Subscription) Extend() {
	s.EndDate = s.EndDate.Add(Period)
}
