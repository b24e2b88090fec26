package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"jizhuanti-go/internal/middleware"
	"jizhuanti-go/internal/service"
	"jizhuanti-go/pkg/log"
	"jizhuanti-go/pkg/token"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// BiographyHandler 负责处理传记合成相关的 API 请求。
type BiographyHandler struct {
	biographyService service.BiographyService
	jwtManager       *token.JWTManager
}

// NewBiographyHandler 创建一个新的 BiographyHandler 实例。
func NewBiographyHandler(biographyService service.BiographyService, jwtManager *token.JWTManager) *BiographyHandler {
	return &BiographyHandler{biographyService: biographyService, jwtManager: jwtManager}
}

// SynthesizeRequest 定义了传记合成 API 的请求体结构。
type SynthesizeRequest struct {
	Chapter      string `json:"chapter"` // 为空表示用全部章节素材
	WritingStyle string `json:"writingStyle"`
	Title        string `json:"title"`
	SkipSave     bool   `json:"skipSave"` // 只预览，不留档
}

// Synthesize 处理传记合成请求（阻塞式，完成后一次性返回）。
func (h *BiographyHandler) Synthesize(c *gin.Context) {
	var req SynthesizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Synthesize: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载",
		})
		return
	}

	result, err := h.biographyService.Synthesize(c.Request.Context(), service.SynthesisRequest{
		UserID:       middleware.UserID(c),
		Chapter:      req.Chapter,
		WritingStyle: req.WritingStyle,
		Title:        req.Title,
		SkipSave:     req.SkipSave,
	})
	if err != nil {
		respondBiographyError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    result,
	})
}

// List 返回当前用户的历史传记。
func (h *BiographyHandler) List(c *gin.Context) {
	biographies, err := h.biographyService.ListBiographies(middleware.UserID(c))
	if err != nil {
		log.Errorf("查询历史传记失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "服务内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    biographies,
	})
}

// streamEnvelope 把生成分块包装成带类型的 JSON 帧再写入连接。
type streamEnvelope struct {
	conn *websocket.Conn
}

func (w *streamEnvelope) WriteMessage(messageType int, data []byte) error {
	frame, err := json.Marshal(gin.H{"type": "chunk", "content": string(data)})
	if err != nil {
		return err
	}
	return w.conn.WriteMessage(messageType, frame)
}

// StreamSynthesize 通过 WebSocket 流式合成传记。
// 连接建立后客户端发送一条 SynthesizeRequest JSON，服务端按分块推送正文，
// 结束时推送一条 done 帧（含完整结果），然后关闭连接。
func (h *BiographyHandler) StreamSynthesize(c *gin.Context) {
	// WebSocket 无法携带自定义请求头，token 放在路径参数里
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("传记流式合成连接已建立，用户: %s", claims.UserID)

	_, message, err := conn.ReadMessage()
	if err != nil {
		log.Warnf("从 WebSocket 读取请求失败: %v", err)
		return
	}

	var req SynthesizeRequest
	if err := json.Unmarshal(message, &req); err != nil {
		h.writeStreamError(conn, "无效的请求负载")
		return
	}

	result, err := h.biographyService.SynthesizeStream(c.Request.Context(), service.SynthesisRequest{
		UserID:       claims.UserID,
		Chapter:      req.Chapter,
		WritingStyle: req.WritingStyle,
		Title:        req.Title,
		SkipSave:     req.SkipSave,
	}, &streamEnvelope{conn: conn})
	if err != nil {
		if errors.Is(err, service.ErrNoMaterial) {
			h.writeStreamError(conn, "还没有可用的访谈素材，先聊几轮再来生成传记吧")
		} else {
			log.Errorf("流式合成传记失败: %v", err)
			h.writeStreamError(conn, "传记生成失败，请稍后重试")
		}
		return
	}

	done, err := json.Marshal(gin.H{"type": "done", "data": result})
	if err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, done); err != nil {
			log.Warnf("写入完成帧失败: %v", err)
		}
	}
}

func (h *BiographyHandler) writeStreamError(conn *websocket.Conn, message string) {
	frame, err := json.Marshal(gin.H{"type": "error", "message": message})
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Warnf("写入错误帧失败: %v", err)
	}
}

func respondBiographyError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrNoMaterial) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":    http.StatusUnprocessableEntity,
			"message": "还没有可用的访谈素材，先聊几轮再来生成传记吧",
		})
		return
	}
	log.Errorf("传记合成失败: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "服务内部错误"})
}
