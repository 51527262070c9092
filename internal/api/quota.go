package api

import (
	"net/http"

	"invite_mall/internal/service"
	"invite_mall/pkg/auth"

	"github.com/gin-gonic/gin"
)

type quotaRoutes struct {
	qs service.QuotaServiceI
	a  *auth.TelegramAuth
}

func NewQuotaRoutes(handler *gin.RouterGroup, qs service.QuotaServiceI, a *auth.TelegramAuth) {
	r := &quotaRoutes{qs: qs, a: a}

	h := handler.Group("/quota")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.GET("", r.GetQuota)
		h.POST("/claim-bonus", r.ClaimBonus)
	}
}

func (r *quotaRoutes) GetQuota(c *gin.Context) {
	summary, err := r.qs.Summary(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err, "failed to get quota")
		return
	}

	c.JSON(http.StatusOK, newQuotaResponse(summary))
}

func (r *quotaRoutes) ClaimBonus(c *gin.Context) {
	summary, err := r.qs.ClaimBonus(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err, "failed to claim quota bonus")
		return
	}

	c.JSON(http.StatusOK, newQuotaResponse(summary))
}
