package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"

	"github.com/rs/zerolog/log"

	"pomelo/internal/conversation"
	"pomelo/internal/model"
)

// ErrBusy 已有请求在途
var ErrBusy = errors.New("client: a request is already in flight")

// ErrInvalidAttachment 附件校验失败
var ErrInvalidAttachment = errors.New("client: invalid attachment")

// maxPDFBytes 客户端侧的附件大小上限，服务端会再校验一次
const maxPDFBytes = 10 * 1024 * 1024

// Attachment 随消息上传的 PDF 附件
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Client 聊天客户端
// 负责组装请求、调用聊天接口，并把流式响应折叠进对话存储。
// 同一对话同时只允许一条请求在途，由 loading 门闩保证。
type Client struct {
	baseURL  string
	httpc    *http.Client
	store    *conversation.Store
	onUpdate func(accumulated string)

	mu      sync.Mutex
	loading bool
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 使用自定义 HTTP 客户端
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithOnUpdate 注册流式更新回调，收到每块后以累计文本调用
func WithOnUpdate(fn func(accumulated string)) Option {
	return func(c *Client) { c.onUpdate = fn }
}

// New 创建聊天客户端
func New(baseURL string, store *conversation.Store, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpc:   http.DefaultClient,
		store:   store,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Loading 是否有请求在途
func (c *Client) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *Client) beginSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return false
	}
	c.loading = true
	return true
}

func (c *Client) endSend() {
	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
}

// Send 发送一条用户消息并把响应流入对话存储
// 传输和接口层面的失败会转成可见的 model 回合而不是返回错误；
// 返回 error 仅发生在前置校验阶段（在途请求、非法附件）。
func (c *Client) Send(ctx context.Context, text string, att *Attachment) error {
	if !c.beginSend() {
		return ErrBusy
	}
	defer c.endSend()

	if att != nil {
		if att.ContentType != "application/pdf" {
			return fmt.Errorf("%w: only PDF files are supported", ErrInvalidAttachment)
		}
		if int64(len(att.Data)) > maxPDFBytes {
			return fmt.Errorf("%w: file size must be less than 10MB", ErrInvalidAttachment)
		}
	}

	// 历史不包含本次新增的用户回合
	history := c.store.History()

	display := text
	if att != nil {
		display = fmt.Sprintf("%s [PDF: %s]", text, att.Name)
	}
	c.store.Append(model.NewTurn(model.RoleUser, display))

	turnID := c.store.Append(model.NewTurn(model.RoleModel, ""))

	if err := c.relay(ctx, text, history, att, turnID); err != nil {
		log.Warn().Err(err).Msg("chat request failed")
		failText := err.Error()
		var boundaryErr *boundaryError
		if !errors.As(err, &boundaryErr) {
			failText = fmt.Sprintf("Sorry, an unexpected error occurred: %v", err)
		}
		if uerr := c.store.UpdateTurnText(turnID, failText); uerr != nil {
			return uerr
		}
	}

	if err := c.store.Save(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to persist chat history")
	}
	return nil
}

// boundaryError 聊天接口返回的结构化错误，文本原样展示给用户
type boundaryError struct {
	status  int
	message string
}

func (e *boundaryError) Error() string {
	return e.message
}

// relay 执行一次请求并把响应流折叠进 turnID 对应的回合
func (c *Client) relay(ctx context.Context, text string, history []model.HistoryTurn, att *Attachment, turnID string) error {
	body, contentType, err := buildForm(text, history, att)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseBoundaryError(resp)
	}

	return newReducer(c.store, turnID, c.onUpdate).consume(ctx, resp.Body)
}

// parseBoundaryError 解析非 200 响应的错误负载
func parseBoundaryError(resp *http.Response) error {
	var errResp model.ErrorResponse
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
		return &boundaryError{status: resp.StatusCode, message: errResp.Error}
	}
	return &boundaryError{
		status:  resp.StatusCode,
		message: fmt.Sprintf("HTTP error! status: %d", resp.StatusCode),
	}
}

// buildForm 组装 multipart 请求体
func buildForm(message string, history []model.HistoryTurn, att *Attachment) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("message", message); err != nil {
		return nil, "", err
	}

	if history == nil {
		history = []model.HistoryTurn{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("history", string(historyJSON)); err != nil {
		return nil, "", err
	}

	if att != nil {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="pdf"; filename="%s"`, att.Name))
		hdr.Set("Content-Type", att.ContentType)
		part, err := w.CreatePart(hdr)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(att.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
