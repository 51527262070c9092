package api

import (
	"net/http"

	"invite_mall/internal/service"
	"invite_mall/pkg/auth"

	"github.com/gin-gonic/gin"
)

type taskRoutes struct {
	is service.InviteServiceI
	a  *auth.TelegramAuth
}

func NewTaskRoutes(handler *gin.RouterGroup, is service.InviteServiceI, a *auth.TelegramAuth) {
	r := &taskRoutes{is: is, a: a}

	h := handler.Group("/tasks")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.POST("/start", r.StartTask)
		h.POST("/bind-helper", r.BindHelper)
		h.POST("/bind-order", r.BindOrder)
		h.GET("", r.ListTasks)
		h.GET("/:task_id", r.GetTask)
	}
}

type StartTaskRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

func (r *taskRoutes) StartTask(c *gin.Context) {
	var req StartTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	task, err := r.is.StartTask(c.Request.Context(), auth.UserID(c), req.OrderID)
	if err != nil {
		respondError(c, err, "failed to start task")
		return
	}

	c.JSON(http.StatusCreated, newTaskResponse(task))
}

type BindHelperRequest struct {
	TaskNo string `json:"task_no" binding:"required"`
}

func (r *taskRoutes) BindHelper(c *gin.Context) {
	var req BindHelperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	help, err := r.is.BindHelper(c.Request.Context(), req.TaskNo, auth.UserID(c), service.BindOptions{})
	if err != nil {
		respondError(c, err, "failed to bind helper")
		return
	}

	c.JSON(http.StatusCreated, newHelpResponse(help))
}

type BindOrderRequest struct {
	TaskNo  string `json:"task_no" binding:"required"`
	OrderID string `json:"order_id" binding:"required"`
}

func (r *taskRoutes) BindOrder(c *gin.Context) {
	var req BindOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	help, err := r.is.BindOrderToHelp(c.Request.Context(), req.TaskNo, auth.UserID(c), req.OrderID)
	if err != nil {
		respondError(c, err, "failed to bind order to help")
		return
	}

	c.JSON(http.StatusOK, newHelpResponse(help))
}

func (r *taskRoutes) ListTasks(c *gin.Context) {
	tasks, err := r.is.ListUserTasks(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err, "failed to list tasks")
		return
	}

	out := make([]TaskProgressResponse, len(tasks))
	for i, p := range tasks {
		out[i] = newTaskProgressResponse(p)
	}
	c.JSON(http.StatusOK, out)
}

func (r *taskRoutes) GetTask(c *gin.Context) {
	progress, err := r.is.TaskProgress(c.Request.Context(), c.Param("task_id"))
	if err == nil && progress.Task.UserID != auth.UserID(c) {
		err = service.ErrTaskNotFound
	}
	if err != nil {
		respondError(c, err, "failed to get task")
		return
	}

	c.JSON(http.StatusOK, newTaskProgressResponse(progress))
}
