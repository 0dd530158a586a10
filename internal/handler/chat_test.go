package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"pomelo/internal/ai"
	"pomelo/internal/model"
)

// fakeStreamer 按预设块返回流，或在调用时直接失败
type fakeStreamer struct {
	chunks  []string
	err     error
	lastReq *ai.ChatRequest
}

func (f *fakeStreamer) ChatStream(ctx context.Context, req *ai.ChatRequest) (*schema.StreamReader[*schema.Message], error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}

	sr, sw := schema.Pipe[*schema.Message](len(f.chunks))
	go func() {
		defer sw.Close()
		for _, chunk := range f.chunks {
			if closed := sw.Send(schema.AssistantMessage(chunk, nil), nil); closed {
				return
			}
		}
	}()
	return sr, nil
}

func newChatRouter(streamer ChatStreamer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.POST("/api/chat", NewChatHandler(streamer, 10*1024*1024).Chat)
	return engine
}

// closeNotifyRecorder 为 httptest.ResponseRecorder 补上 gin c.Stream 依赖的 CloseNotify
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func postChatForm(t *testing.T, router *gin.Engine, fields map[string]string, pdf []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if pdf != nil {
		part, err := w.CreateFormFile("pdf", "doc.pdf")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write(pdf); err != nil {
			t.Fatalf("write pdf part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chat", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(&closeNotifyRecorder{ResponseRecorder: rec, closed: make(chan bool, 1)}, req)
	return rec
}

func TestChatHandler(t *testing.T) {
	Convey("聊天接口", t, func() {
		Convey("流式响应按到达顺序拼接为纯文本", func() {
			f := &fakeStreamer{chunks: []string{"Hi", " there"}}
			rec := postChatForm(t, newChatRouter(f), map[string]string{
				"message": "Hello",
				"history": "[]",
			}, nil)

			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldEqual, "text/plain; charset=utf-8")
			So(rec.Header().Get("Cache-Control"), ShouldEqual, "no-cache")
			So(rec.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
			So(rec.Body.String(), ShouldEqual, "Hi there")
			So(f.lastReq.Message, ShouldEqual, "Hello")
			So(len(f.lastReq.History), ShouldEqual, 0)
		})

		Convey("历史回合透传给模型层", func() {
			f := &fakeStreamer{chunks: []string{"ok"}}
			history := `[{"role":"user","parts":[{"text":"Hi"}]},{"role":"model","parts":[{"text":"Hello!"}]}]`
			rec := postChatForm(t, newChatRouter(f), map[string]string{
				"message": "next",
				"history": history,
			}, nil)

			So(rec.Code, ShouldEqual, http.StatusOK)
			So(len(f.lastReq.History), ShouldEqual, 2)
			So(f.lastReq.History[1].Role, ShouldEqual, model.RoleModel)
		})

		Convey("缺少 message 返回 400", func() {
			f := &fakeStreamer{chunks: []string{"ok"}}
			rec := postChatForm(t, newChatRouter(f), map[string]string{"history": "[]"}, nil)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("history 不是合法 JSON 返回 400", func() {
			f := &fakeStreamer{chunks: []string{"ok"}}
			rec := postChatForm(t, newChatRouter(f), map[string]string{
				"message": "Hello",
				"history": "not json{",
			}, nil)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("未配置 API key 返回 500", func() {
			rec := postChatForm(t, newChatRouter(nil), map[string]string{
				"message": "Hello",
			}, nil)

			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			var resp model.ErrorResponse
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Error, ShouldEqual, "API key not configured")
		})

		Convey("无法解析的 PDF 降级为兜底提示，请求继续", func() {
			f := &fakeStreamer{chunks: []string{"ok"}}
			rec := postChatForm(t, newChatRouter(f), map[string]string{
				"message": "What does it say?",
			}, []byte("definitely not a pdf"))

			So(rec.Code, ShouldEqual, http.StatusOK)
			So(f.lastReq.Message, ShouldContainSubstring, "I received a PDF file (doc.pdf) but couldn't process it")
			So(f.lastReq.Message, ShouldContainSubstring, "Your question: What does it say?")
		})

		Convey("模型调用失败按错误分类返回", func() {
			cases := []struct {
				err    error
				status int
				body   string
			}{
				{errors.New("invalid API key provided"), http.StatusUnauthorized, "Invalid or missing API key"},
				{errors.New("quota exceeded for project"), http.StatusTooManyRequests, "API rate limit exceeded"},
				{errors.New("model is overloaded"), http.StatusServiceUnavailable, "Model not available"},
				{errors.New("something broke"), http.StatusInternalServerError, "An error occurred while processing your request."},
			}

			for _, tc := range cases {
				f := &fakeStreamer{err: tc.err}
				rec := postChatForm(t, newChatRouter(f), map[string]string{
					"message": "Hello",
				}, nil)

				So(rec.Code, ShouldEqual, tc.status)
				var resp model.ErrorResponse
				So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
				So(resp.Error, ShouldEqual, tc.body)
			}
		})

		Convey("未分类错误附带 details", func() {
			f := &fakeStreamer{err: errors.New("something broke")}
			rec := postChatForm(t, newChatRouter(f), map[string]string{
				"message": "Hello",
			}, nil)

			var resp model.ErrorResponse
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Details, ShouldEqual, "something broke")
		})
	})
}
