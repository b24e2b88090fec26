package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"jizhuanti-go/internal/middleware"
	"jizhuanti-go/internal/service"
	"jizhuanti-go/pkg/log"
)

// MemoryHandler 负责处理回忆检索相关的 API 请求。
type MemoryHandler struct {
	memoryService service.MemoryService
}

// NewMemoryHandler 创建一个新的 MemoryHandler 实例。
func NewMemoryHandler(memoryService service.MemoryService) *MemoryHandler {
	return &MemoryHandler{memoryService: memoryService}
}

// Search 在当前用户的访谈回忆里做全文检索。
func (h *MemoryHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "查询关键词不能为空",
		})
		return
	}

	topK, _ := strconv.Atoi(c.DefaultQuery("topK", "5"))

	results, err := h.memoryService.Search(c.Request.Context(), middleware.UserID(c), query, topK)
	if err != nil {
		log.Errorf("回忆检索失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "服务内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    results,
	})
}
