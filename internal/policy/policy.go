package policy

import "time"

// Policy holds the process-wide loan constants
type Policy struct {
	LoanPeriod       time.Duration
	RenewalExtension time.Duration
	MaxRenewals      int
}

// Default mirrors the library's standing rules: 31 days, 14 day renewals, two renewals.
func Default() Policy {
	return Policy{
		LoanPeriod:       31 * 24 * time.Hour,
		RenewalExtension: 14 * 24 * time.Hour,
		MaxRenewals:      2,
	}
}

// ComputeDueDate returns borrowDate + loanPeriod + renewalCount*renewalExtension
func ComputeDueDate(borrowDate time.Time, renewalCount int, loanPeriod, renewalExtension time.Duration) time.Time {
	return borrowDate.Add(loanPeriod + time.Duration(renewalCount)*renewalExtension)
}

// DueDate applies ComputeDueDate with the policy's own constants
func (p Policy) DueDate(borrowDate time.Time, renewalCount int) time.Time {
	return ComputeDueDate(borrowDate, renewalCount, p.LoanPeriod, p.RenewalExtension)
}
