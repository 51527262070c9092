package service

import (
	"errors"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidAmount = errors.New("invalid order amount")

	ErrQuotaExceeded   = errors.New("daily task quota exceeded")
	ErrQuotaBonusLimit = errors.New("daily bonus claims exhausted")

	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderTransition     = errors.New("order status does not allow this transition")
	ErrOrderAlreadyHasTask = errors.New("order already has a task")
	ErrOrderAlreadyBound   = errors.New("order already backs a helper")

	ErrTaskNotFound         = errors.New("task not found")
	ErrTaskNotPending       = errors.New("task is no longer accepting helpers")
	ErrTaskNotPendingPayout = errors.New("task is not awaiting payout review")
	ErrAlreadyBound         = errors.New("helper already bound to task")
	ErrHelpNotFound         = errors.New("helper is not bound to task")
	ErrHelpOrderAlreadySet  = errors.New("helper already bound an order")

	ErrRiskBlocked = errors.New("blocked by risk policy")
)

// Kind groups errors by how a caller should present them.
type Kind int

const (
	KindInternal Kind = iota
	KindBadInput
	KindNotFound
	KindConflict
	KindBlocked
)

type errorInfo struct {
	err  error
	code string
	kind Kind
}

var errorTable = []errorInfo{
	{ErrInvalidInput, "bad_request", KindBadInput},
	{ErrInvalidAmount, "invalid_amount", KindBadInput},
	{ErrQuotaExceeded, "quota_exceeded", KindConflict},
	{ErrQuotaBonusLimit, "quota_bonus_limit", KindConflict},
	{ErrOrderNotFound, "order_not_found", KindNotFound},
	{ErrOrderTransition, "order_status_invalid", KindConflict},
	{ErrOrderAlreadyHasTask, "order_already_has_task", KindConflict},
	{ErrOrderAlreadyBound, "order_already_bound", KindConflict},
	{ErrTaskNotFound, "task_not_found", KindNotFound},
	{ErrTaskNotPending, "task_not_pending", KindConflict},
	{ErrTaskNotPendingPayout, "task_not_pending_payout", KindConflict},
	{ErrAlreadyBound, "already_bound", KindConflict},
	{ErrHelpNotFound, "help_not_found", KindNotFound},
	{ErrHelpOrderAlreadySet, "help_order_already_set", KindConflict},
	{ErrRiskBlocked, "risk_blocked", KindBlocked},
}

// Code returns the stable error code reported to clients.
func Code(err error) string {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal_error"
}

func KindOf(err error) Kind {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.kind
		}
	}
	return KindInternal
}
