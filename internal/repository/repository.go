package repository

import (
	"sync"

	"invite_mall/internal/model"
	"invite_mall/pkg/logger"

	"github.com/pkg/errors"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrTaskNoTaken   = errors.New("task number already taken")

	ErrHelpOrderSet = errors.New("help already has an order")
	ErrOrderBound   = errors.New("order already bound to a help")
)

// Repository is the process-lifetime store behind every service. Reads hand
// out copies, so callers mutate a record only through the Update methods.
type Repository struct {
	mu sync.RWMutex

	orders      map[string]*model.Order
	tasks       map[string]*model.Task
	taskByNo    map[string]string
	taskByOrder map[string]string
	helps       map[string]*model.Help
	helpByOrder map[string]string
	taskHelps   map[string][]string
	ledger      map[string]*model.PayoutLedgerEntry
	queue       map[string]model.PayoutQueueEntry
	quotas      map[quotaKey]*model.DailyQuota

	locks *Locker
}

type quotaKey struct {
	date   string
	userID string
}

func New() *Repository {
	logger.Logger().Debug("In-memory repository initialized")

	return &Repository{
		orders:      make(map[string]*model.Order),
		tasks:       make(map[string]*model.Task),
		taskByNo:    make(map[string]string),
		taskByOrder: make(map[string]string),
		helps:       make(map[string]*model.Help),
		helpByOrder: make(map[string]string),
		taskHelps:   make(map[string][]string),
		ledger:      make(map[string]*model.PayoutLedgerEntry),
		queue:       make(map[string]model.PayoutQueueEntry),
		quotas:      make(map[quotaKey]*model.DailyQuota),
		locks:       NewLocker(),
	}
}

func (r *Repository) LockTask(taskID string) func() {
	return r.locks.Lock("task:" + taskID)
}

func (r *Repository) LockOrder(orderID string) func() {
	return r.locks.Lock("order:" + orderID)
}

func (r *Repository) LockQuota(userID string) func() {
	return r.locks.Lock("quota:" + userID)
}
