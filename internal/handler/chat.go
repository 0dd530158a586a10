package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"pomelo/internal/ai"
	"pomelo/internal/model"
	"pomelo/internal/pkg/pdftext"
)

// ChatStreamer 流式对话能力，由 ai.Client 实现
type ChatStreamer interface {
	ChatStream(ctx context.Context, req *ai.ChatRequest) (*schema.StreamReader[*schema.Message], error)
}

// ChatHandler 对话处理器
type ChatHandler struct {
	streamer    ChatStreamer // 未配置 API key 时为 nil
	maxPDFBytes int64
}

// NewChatHandler 创建对话处理器
func NewChatHandler(streamer ChatStreamer, maxPDFBytes int64) *ChatHandler {
	return &ChatHandler{
		streamer:    streamer,
		maxPDFBytes: maxPDFBytes,
	}
}

// Chat 流式对话接口
// 接收 multipart 表单: message (文本)、history (JSON 历史)、pdf (可选附件)，
// 以 text/plain 分块回写模型响应。
func (h *ChatHandler) Chat(c *gin.Context) {
	if h.streamer == nil {
		log.Error().Msg("AI API key is not configured")
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error: "API key not configured",
		})
		return
	}

	message := c.PostForm("message")
	if message == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error: "message is required",
		})
		return
	}

	var history []model.HistoryTurn
	if historyJSON := c.PostForm("history"); historyJSON != "" {
		if err := json.Unmarshal([]byte(historyJSON), &history); err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{
				Error:   "invalid history payload",
				Details: err.Error(),
			})
			return
		}
	}

	enhanced, ok := h.resolvePrompt(c, message)
	if !ok {
		return
	}

	stream, err := h.streamer.ChatStream(c.Request.Context(), &ai.ChatRequest{
		Message: enhanced,
		History: history,
	})
	if err != nil {
		status, resp := classifyModelError(err)
		log.Error().Err(err).Int("status", status).Msg("chat model call failed")
		c.JSON(status, resp)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "POST")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	c.Status(http.StatusOK)

	c.Stream(func(w io.Writer) bool {
		msg, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// 响应已经开始，只能就地终止
				log.Warn().Err(err).Msg("response stream interrupted")
			}
			return false
		}
		if msg.Content != "" {
			_, _ = w.Write([]byte(msg.Content))
		}
		return true
	})
}

// resolvePrompt 解析可选 PDF 附件并组装最终提示词
// 提取失败降级为带文件名的兜底提示，不中断请求；第二个返回值为 false
// 表示已写入错误响应。
func (h *ChatHandler) resolvePrompt(c *gin.Context, message string) (string, bool) {
	file, header, err := c.Request.FormFile("pdf")
	if err != nil {
		// 没有附件
		return message, true
	}
	defer file.Close()

	if header.Size > h.maxPDFBytes {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error: fmt.Sprintf("PDF file too large (max %d bytes)", h.maxPDFBytes),
		})
		return "", false
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxPDFBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "failed to read PDF upload",
			Details: err.Error(),
		})
		return "", false
	}
	if int64(len(data)) > h.maxPDFBytes {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error: fmt.Sprintf("PDF file too large (max %d bytes)", h.maxPDFBytes),
		})
		return "", false
	}

	content, err := pdftext.Extract(data)
	if err != nil {
		log.Warn().Err(err).Str("filename", header.Filename).Msg("PDF processing failed, degrading to fallback prompt")
		return fmt.Sprintf(
			"I received a PDF file (%s) but couldn't process it. "+
				"Please ask your question about the document and I'll help as best I can. "+
				"Your question: %s", header.Filename, message), true
	}

	return fmt.Sprintf("Based on this PDF content:\n\n%s\n\nUser question: %s", content, message), true
}
