package model

import "time"

type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "PENDING"
	PayoutApproved PayoutStatus = "APPROVED"
	PayoutRejected PayoutStatus = "REJECTED"
)

type PayoutLedgerEntry struct {
	ID             string
	TaskID         string
	TaskNo         string
	UserID         string
	OrderID        string
	HelperUserIDs  []string
	HelperOrderIDs []string
	QualifiedAt    *time.Time
	PayoutAt       *time.Time
	PayoutStatus   PayoutStatus
	RiskLevel      RiskLevel
	RiskReasons    []string
	Note           *string
	Operator       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (e *PayoutLedgerEntry) Clone() *PayoutLedgerEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.HelperUserIDs = append([]string(nil), e.HelperUserIDs...)
	c.HelperOrderIDs = append([]string(nil), e.HelperOrderIDs...)
	c.RiskReasons = append([]string(nil), e.RiskReasons...)
	if e.Note != nil {
		n := *e.Note
		c.Note = &n
	}
	return &c
}

// PayoutQueueEntry records when a task entered the admin payout queue.
type PayoutQueueEntry struct {
	TaskID    string
	EnteredAt time.Time
}
