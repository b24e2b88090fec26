// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"jizhuanti-go/internal/middleware"
	"jizhuanti-go/internal/service"
	"jizhuanti-go/pkg/log"
)

// InterviewHandler 负责处理访谈推进相关的 API 请求。
type InterviewHandler struct {
	interviewService service.InterviewService
}

// NewInterviewHandler 创建一个新的 InterviewHandler 实例。
func NewInterviewHandler(interviewService service.InterviewService) *InterviewHandler {
	return &InterviewHandler{interviewService: interviewService}
}

// NextQuestionRequest 定义了获取下一问 API 的请求体结构。
type NextQuestionRequest struct {
	Chapter   string `json:"chapter" binding:"required"`
	SessionID string `json:"sessionId"`
}

// NextQuestion 处理获取下一轮访谈问题的请求。
func (h *InterviewHandler) NextQuestion(c *gin.Context) {
	var req NextQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("NextQuestion: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：章节不能为空",
		})
		return
	}

	result, err := h.interviewService.GetNextQuestion(c.Request.Context(), middleware.UserID(c), req.Chapter, req.SessionID)
	if err != nil {
		respondInterviewError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    result,
	})
}

// SaveAnswerRequest 定义了提交回答 API 的请求体结构。
type SaveAnswerRequest struct {
	Chapter     string `json:"chapter" binding:"required"`
	SessionID   string `json:"sessionId" binding:"required"`
	RoundNumber int    `json:"roundNumber"`
	Answer      string `json:"answer" binding:"required"`
}

// SaveAnswer 处理保存回答并推进到下一轮的请求。
func (h *InterviewHandler) SaveAnswer(c *gin.Context) {
	var req SaveAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("SaveAnswer: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：章节、会话和回答不能为空",
		})
		return
	}

	result, err := h.interviewService.SaveAnswerAndAdvance(
		c.Request.Context(), middleware.UserID(c), req.Chapter, req.SessionID, req.RoundNumber, req.Answer)
	if err != nil {
		respondInterviewError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    result,
	})
}

// respondInterviewError 把业务错误映射到 HTTP 状态码。
func respondInterviewError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownChapter), errors.Is(err, service.ErrEmptyAnswer):
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error()})
	case errors.Is(err, service.ErrTurnNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": err.Error()})
	default:
		log.Errorf("访谈请求处理失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "服务内部错误"})
	}
}
