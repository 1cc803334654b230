package api

import (
	"context"
	"errors"
	"net/http"

	"docqa/internal/models"
	"docqa/internal/rag/pipeline"
	"docqa/internal/rag_service/service"

	"github.com/gin-gonic/gin"
)

// RunService 是处理函数依赖的业务接口，*service.Service 实现了它。
type RunService interface {
	Run(ctx context.Context, req *models.RunRequest) (*models.RunResponse, error)
	Health() service.HealthInfo
}

// Handler 持有 HTTP 处理函数所需的依赖。
type Handler struct {
	svc RunService
}

// NewHandler 创建一个新的 Handler 实例。
func NewHandler(svc RunService) *Handler {
	return &Handler{svc: svc}
}

// Run 处理 POST /api/v1/hackrx/run。
func (h *Handler) Run(c *gin.Context) {
	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, &models.RunResponse{
			Answers: []string{},
			Success: false,
			Error:   "invalid request body: " + err.Error(),
		})
		return
	}

	resp, err := h.svc.Run(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Health 处理 GET /health，不经过鉴权也不调用流水线。
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health())
}

// statusFor 将致命错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, pipeline.ErrFetch):
		return http.StatusBadGateway
	case errors.Is(err, pipeline.ErrExtraction), errors.Is(err, pipeline.ErrChunking):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
