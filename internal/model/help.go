package model

import "time"

type HelpStatus string

const (
	HelpBound   HelpStatus = "BOUND"
	HelpValid   HelpStatus = "VALID"
	HelpInvalid HelpStatus = "INVALID"
)

type HelperStatus string

const (
	HelperBound         HelperStatus = "BOUND"
	HelperPendingReview HelperStatus = "PENDING_REVIEW"
	HelperRejected      HelperStatus = "REJECTED"
)

type Help struct {
	HelpID       string
	TaskID       string
	HelperUserID string
	OrderID      string
	Status       HelpStatus
	HelperStatus HelperStatus
	CreatedAt    time.Time
	ReceivedAt   *time.Time
	InvalidAt    *time.Time
}

// Qualifying reports whether the help counts toward task progress.
func (h *Help) Qualifying() bool {
	return h.Status == HelpValid &&
		h.HelperStatus != HelperPendingReview &&
		h.HelperStatus != HelperRejected
}
