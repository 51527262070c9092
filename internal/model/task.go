package model

import "time"

type TaskStatus string

const (
	TaskPending       TaskStatus = "PENDING"
	TaskQualified     TaskStatus = "QUALIFIED"
	TaskPendingPayout TaskStatus = "PENDING_PAYOUT"
	TaskPaidOut       TaskStatus = "PAID_OUT"
	TaskRevoked       TaskStatus = "REVOKED"
)

// Terminal reports whether no further transition may leave the status.
func (s TaskStatus) Terminal() bool {
	return s == TaskPaidOut || s == TaskRevoked
}

// Revocable reports whether a refunded helper order revokes a task in this status.
func (s TaskStatus) Revocable() bool {
	return s == TaskPending || s == TaskQualified || s == TaskPendingPayout
}

// Qualification is present on a task from the moment it reaches QUALIFIED
// and is carried unchanged through the later statuses.
type Qualification struct {
	QualifiedAt time.Time
	PayoutAt    time.Time
}

type RiskMark struct {
	Rule   string
	Detail string
	At     time.Time
}

type Task struct {
	TaskID           string
	TaskNo           string
	UserID           string
	OrderID          string
	Status           TaskStatus
	RequiredHelpers  int
	CreatedAt        time.Time
	Qualification    *Qualification
	PaidOutAt        *time.Time
	RevokedAt        *time.Time
	Note             string
	RiskMarks        []RiskMark
	RiskDelayApplied bool
}

func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Qualification != nil {
		q := *t.Qualification
		c.Qualification = &q
	}
	if t.RiskMarks != nil {
		c.RiskMarks = append([]RiskMark(nil), t.RiskMarks...)
	}
	return &c
}

// HasRiskRule reports whether a mark for rule was already recorded.
func (t *Task) HasRiskRule(rule string) bool {
	for _, m := range t.RiskMarks {
		if m.Rule == rule {
			return true
		}
	}
	return false
}
