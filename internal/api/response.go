package api

import (
	"net/http"
	"time"

	"invite_mall/internal/model"
	"invite_mall/internal/service"
	"invite_mall/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// respondError writes {"error": code} with the status matching the error kind.
func respondError(c *gin.Context, err error, msg string) {
	log := logger.Logger()

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(msg, zap.Error(err))
	} else {
		log.Info(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": service.Code(err)})
}

func statusFor(err error) int {
	switch service.KindOf(err) {
	case service.KindBadInput:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindBlocked:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, err error) {
	logger.Logger().Info("failed to bind request", zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": service.Code(service.ErrInvalidInput)})
}

type OrderResponse struct {
	OrderID            string          `json:"order_id"`
	UserID             string          `json:"user_id"`
	Amount             decimal.Decimal `json:"amount"`
	PayAmount          decimal.Decimal `json:"pay_amount"`
	Status             string          `json:"status"`
	ReceiveMode        string          `json:"receive_mode,omitempty"`
	ExpressCompanyCode string          `json:"express_company_code,omitempty"`
	TrackingNo         string          `json:"tracking_no,omitempty"`
	CloseReason        string          `json:"close_reason,omitempty"`
	RefundReason       string          `json:"refund_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	ShippedAt          *time.Time      `json:"shipped_at,omitempty"`
	ReceivedAt         *time.Time      `json:"received_at,omitempty"`
	ClosedAt           *time.Time      `json:"closed_at,omitempty"`
	RefundedAt         *time.Time      `json:"refunded_at,omitempty"`
}

func newOrderResponse(o *model.Order) OrderResponse {
	return OrderResponse{
		OrderID:            o.OrderID,
		UserID:             o.UserID,
		Amount:             o.Amount,
		PayAmount:          o.PayAmount,
		Status:             string(o.Status),
		ReceiveMode:        string(o.ReceiveMode),
		ExpressCompanyCode: o.ExpressCompanyCode,
		TrackingNo:         o.TrackingNo,
		CloseReason:        o.CloseReason,
		RefundReason:       o.RefundReason,
		CreatedAt:          o.CreatedAt,
		PaidAt:             o.PaidAt,
		ShippedAt:          o.ShippedAt,
		ReceivedAt:         o.ReceivedAt,
		ClosedAt:           o.ClosedAt,
		RefundedAt:         o.RefundedAt,
	}
}

type RiskMarkResponse struct {
	Rule   string    `json:"rule"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

type TaskResponse struct {
	TaskID           string             `json:"task_id"`
	TaskNo           string             `json:"task_no"`
	UserID           string             `json:"user_id"`
	OrderID          string             `json:"order_id"`
	Status           string             `json:"status"`
	RequiredHelpers  int                `json:"required_helpers"`
	CreatedAt        time.Time          `json:"created_at"`
	QualifiedAt      *time.Time         `json:"qualified_at"`
	PayoutAt         *time.Time         `json:"payout_at"`
	PaidOutAt        *time.Time         `json:"paid_out_at,omitempty"`
	RevokedAt        *time.Time         `json:"revoked_at,omitempty"`
	Note             string             `json:"note,omitempty"`
	RiskMarks        []RiskMarkResponse `json:"risk_marks"`
	RiskDelayApplied bool               `json:"risk_delay_applied"`
}

func newTaskResponse(t *model.Task) TaskResponse {
	out := TaskResponse{
		TaskID:           t.TaskID,
		TaskNo:           t.TaskNo,
		UserID:           t.UserID,
		OrderID:          t.OrderID,
		Status:           string(t.Status),
		RequiredHelpers:  t.RequiredHelpers,
		CreatedAt:        t.CreatedAt,
		PaidOutAt:        t.PaidOutAt,
		RevokedAt:        t.RevokedAt,
		Note:             t.Note,
		RiskMarks:        make([]RiskMarkResponse, len(t.RiskMarks)),
		RiskDelayApplied: t.RiskDelayApplied,
	}
	if q := t.Qualification; q != nil {
		qa, pa := q.QualifiedAt, q.PayoutAt
		out.QualifiedAt, out.PayoutAt = &qa, &pa
	}
	for i, m := range t.RiskMarks {
		out.RiskMarks[i] = RiskMarkResponse{Rule: m.Rule, Detail: m.Detail, At: m.At}
	}
	return out
}

type HelpResponse struct {
	HelpID       string     `json:"help_id"`
	TaskID       string     `json:"task_id"`
	HelperUserID string     `json:"helper_user_id"`
	OrderID      string     `json:"order_id,omitempty"`
	Status       string     `json:"status"`
	HelperStatus string     `json:"helper_status"`
	CreatedAt    time.Time  `json:"created_at"`
	ReceivedAt   *time.Time `json:"received_at,omitempty"`
	InvalidAt    *time.Time `json:"invalid_at,omitempty"`
}

func newHelpResponse(h *model.Help) HelpResponse {
	return HelpResponse{
		HelpID:       h.HelpID,
		TaskID:       h.TaskID,
		HelperUserID: h.HelperUserID,
		OrderID:      h.OrderID,
		Status:       string(h.Status),
		HelperStatus: string(h.HelperStatus),
		CreatedAt:    h.CreatedAt,
		ReceivedAt:   h.ReceivedAt,
		InvalidAt:    h.InvalidAt,
	}
}

type LedgerResponse struct {
	ID           string     `json:"id"`
	PayoutStatus string     `json:"payout_status"`
	RiskLevel    string     `json:"risk_level"`
	RiskReasons  []string   `json:"risk_reasons"`
	QualifiedAt  *time.Time `json:"qualified_at"`
	PayoutAt     *time.Time `json:"payout_at"`
	Note         *string    `json:"note"`
	Operator     string     `json:"operator,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func newLedgerResponse(e *model.PayoutLedgerEntry) *LedgerResponse {
	if e == nil {
		return nil
	}
	return &LedgerResponse{
		ID:           e.ID,
		PayoutStatus: string(e.PayoutStatus),
		RiskLevel:    string(e.RiskLevel),
		RiskReasons:  e.RiskReasons,
		QualifiedAt:  e.QualifiedAt,
		PayoutAt:     e.PayoutAt,
		Note:         e.Note,
		Operator:     e.Operator,
		UpdatedAt:    e.UpdatedAt,
	}
}

type HelperProgressResponse struct {
	HelpResponse
	Stage       string     `json:"stage"`
	OrderStatus string     `json:"order_status,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
}

type RiskResponse struct {
	Level            string   `json:"level"`
	Reasons          []string `json:"reasons"`
	HasPendingReview bool     `json:"has_pending_review"`
}

type TaskProgressResponse struct {
	TaskResponse
	Progress         int                      `json:"progress"`
	Required         int                      `json:"required"`
	CountdownSeconds int64                    `json:"countdown_seconds"`
	Helpers          []HelperProgressResponse `json:"helpers"`
	Risk             RiskResponse             `json:"risk"`
	Ledger           *LedgerResponse          `json:"ledger"`
}

func newTaskProgressResponse(p *service.TaskProgress) TaskProgressResponse {
	out := TaskProgressResponse{
		TaskResponse:     newTaskResponse(p.Task),
		Progress:         p.Progress,
		Required:         p.Required,
		CountdownSeconds: p.CountdownSeconds,
		Helpers:          make([]HelperProgressResponse, len(p.Helpers)),
		Risk: RiskResponse{
			Level:            string(p.Risk.Level),
			Reasons:          p.Risk.Reasons,
			HasPendingReview: p.HasPendingReview,
		},
		Ledger: newLedgerResponse(p.Ledger),
	}
	for i, h := range p.Helpers {
		out.Helpers[i] = HelperProgressResponse{
			HelpResponse: newHelpResponse(h.Help),
			Stage:        string(h.Stage),
			OrderStatus:  string(h.OrderStatus),
			ShippedAt:    h.ShippedAt,
		}
	}
	return out
}

type QuotaResponse struct {
	Date      string `json:"date"`
	Base      int    `json:"base"`
	Bonus     int    `json:"bonus"`
	Used      int    `json:"used"`
	Available int    `json:"available"`
	Unlimited bool   `json:"unlimited"`
}

func newQuotaResponse(q *model.QuotaSummary) QuotaResponse {
	return QuotaResponse{
		Date:      q.Date,
		Base:      q.Base,
		Bonus:     q.Bonus,
		Used:      q.Used,
		Available: q.Available,
		Unlimited: q.Unlimited,
	}
}
