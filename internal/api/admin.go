package api

import (
	"context"
	"net/http"
	"time"

	"invite_mall/internal/middleware"
	"invite_mall/internal/model"
	"invite_mall/internal/service"
	"invite_mall/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type Ticker interface {
	Tick(ctx context.Context) worker.TickReport
}

type adminRoutes struct {
	as    service.AdminServiceI
	os    service.OrderServiceI
	sched Ticker
	feed  *PayoutFeed
}

func NewAdminRoutes(
	handler *gin.RouterGroup,
	as service.AdminServiceI,
	os service.OrderServiceI,
	sched Ticker,
	feed *PayoutFeed,
	authz *middleware.Authorization,
) {
	r := &adminRoutes{as: as, os: os, sched: sched, feed: feed}

	h := handler.Group("/admin")
	h.Use(authz.AdminOnly())
	{
		h.GET("/payouts", r.ListPayouts)
		h.POST("/payouts/:task_id/approve", r.ApprovePayout)
		h.POST("/payouts/:task_id/reject", r.RejectPayout)

		h.GET("/tasks/:task_id", r.GetTaskDetail)
		h.POST("/tasks/:task_id/risk-marks", r.MarkTaskRisk)

		h.GET("/risk/review", r.ReviewQueue)
		h.POST("/risk/review/approve", r.ApproveHelper)
		h.POST("/risk/review/reject", r.RejectHelper)

		h.POST("/orders/:order_id/ship", r.ShipOrder)
		h.POST("/orders/:order_id/refund", r.RefundOrder)

		h.POST("/scheduler/tick", r.Tick)
		h.GET("/ws", feed.handleWebSocket)
	}
}

type ListPayoutsQuery struct {
	RiskLevel    string `form:"risk_level" binding:"omitempty,oneof=LOW MEDIUM HIGH"`
	PayoutStatus string `form:"payout_status" binding:"omitempty,oneof=PENDING APPROVED REJECTED"`
	Search       string `form:"q"`
	Order        string `form:"order" binding:"omitempty,oneof=asc desc"`
	Page         int    `form:"page" binding:"omitempty,min=1"`
	PageSize     int    `form:"page_size" binding:"omitempty,min=1"`
}

type PayoutItemResponse struct {
	TaskResponse
	Amount       *decimal.Decimal `json:"amount"`
	RiskLevel    string           `json:"risk_level"`
	RiskReasons  []string         `json:"risk_reasons"`
	PayoutStatus string           `json:"payout_status,omitempty"`
}

type PayoutPageResponse struct {
	Items    []PayoutItemResponse `json:"items"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

func (r *adminRoutes) ListPayouts(c *gin.Context) {
	var q ListPayoutsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	page, err := r.as.ListPendingPayouts(c.Request.Context(), service.PayoutQuery{
		RiskLevel:    model.RiskLevel(q.RiskLevel),
		PayoutStatus: model.PayoutStatus(q.PayoutStatus),
		Search:       q.Search,
		SortAsc:      q.Order == "asc",
		Page:         q.Page,
		PageSize:     q.PageSize,
	})
	if err != nil {
		respondError(c, err, "failed to list payouts")
		return
	}

	out := PayoutPageResponse{
		Items:    make([]PayoutItemResponse, len(page.Items)),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
	for i, it := range page.Items {
		item := PayoutItemResponse{
			TaskResponse: newTaskResponse(it.Task),
			Amount:       it.Amount,
			RiskLevel:    string(it.RiskLevel),
			RiskReasons:  it.RiskReasons,
			PayoutStatus: string(it.PayoutStatus),
		}
		item.QualifiedAt, item.PayoutAt = it.QualifiedAt, it.PayoutAt
		out.Items[i] = item
	}
	c.JSON(http.StatusOK, out)
}

type SettlementRequest struct {
	Note string `json:"note"`
}

type SettlementResponse struct {
	TaskID         string `json:"task_id"`
	Status         string `json:"status"`
	AlreadyHandled bool   `json:"already_handled"`
}

func (r *adminRoutes) ApprovePayout(c *gin.Context) {
	r.settle(c, r.as.Approve, "failed to approve payout")
}

func (r *adminRoutes) RejectPayout(c *gin.Context) {
	r.settle(c, r.as.Reject, "failed to reject payout")
}

func (r *adminRoutes) settle(
	c *gin.Context,
	decide func(ctx context.Context, taskID, note, operatorKey string) (*service.SettlementResult, error),
	failMsg string,
) {
	var req SettlementRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	res, err := decide(c.Request.Context(), c.Param("task_id"), req.Note, middleware.OperatorKey(c))
	if err != nil {
		respondError(c, err, failMsg)
		return
	}

	c.JSON(http.StatusOK, SettlementResponse{
		TaskID:         res.TaskID,
		Status:         string(res.Status),
		AlreadyHandled: res.AlreadyHandled,
	})
}

type TaskDetailResponse struct {
	TaskProgressResponse
	Order    *OrderResponse `json:"order"`
	QueuedAt *time.Time     `json:"queued_at"`
}

func (r *adminRoutes) GetTaskDetail(c *gin.Context) {
	detail, err := r.as.TaskDetail(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		respondError(c, err, "failed to get task detail")
		return
	}

	out := TaskDetailResponse{
		TaskProgressResponse: newTaskProgressResponse(detail.TaskProgress),
		QueuedAt:             detail.QueuedAt,
	}
	if detail.Order != nil {
		o := newOrderResponse(detail.Order)
		out.Order = &o
	}
	c.JSON(http.StatusOK, out)
}

type RiskMarkRequest struct {
	Rule   string `json:"rule" binding:"required"`
	Detail string `json:"detail"`
}

func (r *adminRoutes) MarkTaskRisk(c *gin.Context) {
	var req RiskMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	task, err := r.as.MarkTaskRisk(c.Request.Context(), c.Param("task_id"), req.Rule, req.Detail)
	if err != nil {
		respondError(c, err, "failed to mark task risk")
		return
	}

	c.JSON(http.StatusOK, newTaskResponse(task))
}

func (r *adminRoutes) ReviewQueue(c *gin.Context) {
	tasks, err := r.as.ReviewQueue(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to list risk review queue")
		return
	}

	out := make([]TaskProgressResponse, len(tasks))
	for i, p := range tasks {
		out[i] = newTaskProgressResponse(p)
	}
	c.JSON(http.StatusOK, out)
}

type ReviewHelperRequest struct {
	TaskID       string `json:"task_id" binding:"required"`
	HelperUserID string `json:"helper_user_id" binding:"required"`
}

func (r *adminRoutes) ApproveHelper(c *gin.Context) {
	r.reviewHelper(c, r.as.ApproveHelper, "failed to approve helper")
}

func (r *adminRoutes) RejectHelper(c *gin.Context) {
	r.reviewHelper(c, r.as.RejectHelper, "failed to reject helper")
}

func (r *adminRoutes) reviewHelper(
	c *gin.Context,
	review func(ctx context.Context, taskID, helperUserID string) (*model.Help, error),
	failMsg string,
) {
	var req ReviewHelperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	help, err := review(c.Request.Context(), req.TaskID, req.HelperUserID)
	if err != nil {
		respondError(c, err, failMsg)
		return
	}

	c.JSON(http.StatusOK, newHelpResponse(help))
}

type ShipOrderRequest struct {
	ExpressCompanyCode string `json:"express_company_code"`
	TrackingNo         string `json:"tracking_no"`
}

func (r *adminRoutes) ShipOrder(c *gin.Context) {
	var req ShipOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	order, err := r.os.Ship(c.Request.Context(), c.Param("order_id"), req.ExpressCompanyCode, req.TrackingNo)
	if err != nil {
		respondError(c, err, "failed to ship order")
		return
	}

	c.JSON(http.StatusOK, newOrderResponse(order))
}

type RefundOrderRequest struct {
	Reason string `json:"reason"`
}

func (r *adminRoutes) RefundOrder(c *gin.Context) {
	var req RefundOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	order, err := r.os.Refund(c.Request.Context(), c.Param("order_id"), req.Reason)
	if err != nil {
		respondError(c, err, "failed to refund order")
		return
	}

	c.JSON(http.StatusOK, newOrderResponse(order))
}

type TickResponse struct {
	AutoReceived int `json:"auto_received"`
	Promoted     int `json:"promoted"`
	RiskBlocked  int `json:"risk_blocked"`
	Expired      int `json:"expired"`
	Failed       int `json:"failed"`
}

func (r *adminRoutes) Tick(c *gin.Context) {
	report := r.sched.Tick(c.Request.Context())

	c.JSON(http.StatusOK, TickResponse{
		AutoReceived: report.AutoReceived,
		Promoted:     report.Promoted,
		RiskBlocked:  report.RiskBlocked,
		Expired:      report.Expired,
		Failed:       report.Failed,
	})
}
