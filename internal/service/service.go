package service

import (
	"context"
	"time"

	"invite_mall/internal/model"
	"invite_mall/internal/repository"

	"github.com/shopspring/decimal"
)

type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

type Service struct {
	Orders  *OrderService
	Quotas  *QuotaService
	Ledger  *LedgerService
	Invites *InviteService
	Admin   *AdminService
}

type options struct {
	clock      Clock
	classifier RiskClassifier
	notifier   Notifier
	releaser   ReservationReleaser
}

type Option func(*options)

func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

func WithClassifier(c RiskClassifier) Option {
	return func(o *options) { o.classifier = c }
}

func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

func WithReservationReleaser(r ReservationReleaser) Option {
	return func(o *options) { o.releaser = r }
}

// NewService wires the promotion services around one store and subscribes
// the invite engine to order events.
func NewService(store Store, cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		clock:      systemClock,
		classifier: RuleCountClassifier{},
		notifier:   Notifiers(nil),
	}
	for _, opt := range opts {
		opt(&o)
	}

	orders := NewOrderService(store, o.clock, o.releaser)
	quotas := NewQuotaService(store, cfg.DailyStartQuota, cfg.DailyBonusMax, o.clock)
	ledger := NewLedgerService(store, o.classifier, o.clock)
	invites := NewInviteService(store, quotas, ledger, o.classifier, o.notifier, cfg, o.clock)
	admin := NewAdminService(store, invites, ledger, o.classifier, o.clock)

	orders.Subscribe(invites)

	return &Service{
		Orders:  orders,
		Quotas:  quotas,
		Ledger:  ledger,
		Invites: invites,
		Admin:   admin,
	}, nil
}

type OrderServiceI interface {
	Create(ctx context.Context, userID string, amount decimal.Decimal, opts CreateOrderOptions) (*model.Order, error)
	Get(ctx context.Context, orderID string) (*model.Order, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Order, error)
	Pay(ctx context.Context, orderID string, payAmount *decimal.Decimal) (*model.Order, error)
	Ship(ctx context.Context, orderID, expressCompanyCode, trackingNo string) (*model.Order, error)
	Receive(ctx context.Context, orderID string, mode model.ReceiveMode) (*model.Order, error)
	Refund(ctx context.Context, orderID, reason string) (*model.Order, error)
}

type QuotaServiceI interface {
	Summary(ctx context.Context, userID string) (*model.QuotaSummary, error)
	ClaimBonus(ctx context.Context, userID string) (*model.QuotaSummary, error)
}

type InviteServiceI interface {
	StartTask(ctx context.Context, userID, orderID string) (*model.Task, error)
	BindHelper(ctx context.Context, taskNo, helperUserID string, opts BindOptions) (*model.Help, error)
	BindOrderToHelp(ctx context.Context, taskNo, helperUserID, orderID string) (*model.Help, error)
	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	TaskProgress(ctx context.Context, taskID string) (*TaskProgress, error)
	ListUserTasks(ctx context.Context, userID string) ([]*TaskProgress, error)
}

type AdminServiceI interface {
	ListPendingPayouts(ctx context.Context, q PayoutQuery) (*PayoutPage, error)
	TaskDetail(ctx context.Context, taskID string) (*TaskDetail, error)
	Approve(ctx context.Context, taskID, note, operatorKey string) (*SettlementResult, error)
	Reject(ctx context.Context, taskID, note, operatorKey string) (*SettlementResult, error)
	ReviewQueue(ctx context.Context) ([]*TaskProgress, error)
	ApproveHelper(ctx context.Context, taskID, helperUserID string) (*model.Help, error)
	RejectHelper(ctx context.Context, taskID, helperUserID string) (*model.Help, error)
	MarkTaskRisk(ctx context.Context, taskID, rule, detail string) (*model.Task, error)
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *model.Order) error
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	UpdateOrder(ctx context.Context, order *model.Order) error
	ListOrders(ctx context.Context, filter repository.OrderFilter) ([]*model.Order, error)
	LockOrder(orderID string) func()
}

type QuotaRepository interface {
	GetDailyQuota(ctx context.Context, date, userID string) (*model.DailyQuota, error)
	UpdateDailyQuota(ctx context.Context, quota *model.DailyQuota) error
	LockQuota(userID string) func()
}

type LedgerRepository interface {
	GetLedgerEntry(ctx context.Context, taskID string) (*model.PayoutLedgerEntry, error)
	InsertLedgerEntry(ctx context.Context, entry *model.PayoutLedgerEntry) error
	UpdateLedgerEntry(ctx context.Context, entry *model.PayoutLedgerEntry) error
	ListHelpsByTask(ctx context.Context, taskID string) ([]*model.Help, error)
}

type InviteRepository interface {
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)

	CreateTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	GetTaskByNo(ctx context.Context, taskNo string) (*model.Task, error)
	TaskExistsForOrder(ctx context.Context, orderID string) bool
	UpdateTask(ctx context.Context, task *model.Task) error
	ListTasks(ctx context.Context, filter repository.TaskFilter) ([]*model.Task, error)
	LockTask(taskID string) func()

	CreateHelp(ctx context.Context, help *model.Help, allowDuplicate bool) error
	FindHelp(ctx context.Context, taskID, helperUserID string) (*model.Help, error)
	GetHelpByOrder(ctx context.Context, orderID string) (*model.Help, error)
	ListHelpsByTask(ctx context.Context, taskID string) ([]*model.Help, error)
	ListTaskIDsByHelperStatus(ctx context.Context, status model.HelperStatus) ([]string, error)
	AttachHelpOrder(ctx context.Context, helpID, orderID string) (*model.Help, error)
	UpdateHelp(ctx context.Context, help *model.Help) error

	EnqueuePayout(ctx context.Context, entry model.PayoutQueueEntry) bool
	GetPayoutQueueEntry(ctx context.Context, taskID string) (*model.PayoutQueueEntry, error)
}

type AdminRepository interface {
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	ListTasks(ctx context.Context, filter repository.TaskFilter) ([]*model.Task, error)
	GetPayoutQueueEntry(ctx context.Context, taskID string) (*model.PayoutQueueEntry, error)
	ListTaskIDsByHelperStatus(ctx context.Context, status model.HelperStatus) ([]string, error)
}

// Store is everything the promotion services need from persistence.
type Store interface {
	OrderRepository
	QuotaRepository
	LedgerRepository
	InviteRepository
	AdminRepository
}
