package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"pomelo/internal/model"
)

// streamingHandler 记录收到的表单字段并分块回写响应
type streamingHandler struct {
	chunks      []string
	lastMessage string
	lastHistory string
	sawPDF      bool
}

func (h *streamingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.lastMessage = r.FormValue("message")
	h.lastHistory = r.FormValue("history")
	_, _, err := r.FormFile("pdf")
	h.sawPDF = err == nil

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	flusher := w.(http.Flusher)
	for _, chunk := range h.chunks {
		_, _ = w.Write([]byte(chunk))
		flusher.Flush()
	}
}

func TestClient_Send(t *testing.T) {
	ctx := context.Background()

	Convey("聊天客户端", t, func() {
		Convey("发送 Hello 并收到流式响应", func() {
			h := &streamingHandler{chunks: []string{"Hi", " there"}}
			srv := httptest.NewServer(h)
			defer srv.Close()

			store := newTestStore(t)
			c := New(srv.URL, store)

			So(c.Send(ctx, "Hello", nil), ShouldBeNil)

			So(h.lastMessage, ShouldEqual, "Hello")
			So(h.lastHistory, ShouldEqual, "[]")
			So(h.sawPDF, ShouldBeFalse)

			turns := store.Turns()
			So(len(turns), ShouldEqual, 2)
			So(turns[0].Role, ShouldEqual, model.RoleUser)
			So(turns[0].Text(), ShouldEqual, "Hello")
			So(turns[1].Role, ShouldEqual, model.RoleModel)
			So(turns[1].Text(), ShouldEqual, "Hi there")
			So(c.Loading(), ShouldBeFalse)
		})

		Convey("历史只包含此前的回合", func() {
			h := &streamingHandler{chunks: []string{"ok"}}
			srv := httptest.NewServer(h)
			defer srv.Close()

			store := newTestStore(t)
			c := New(srv.URL, store)

			So(c.Send(ctx, "first", nil), ShouldBeNil)
			So(c.Send(ctx, "second", nil), ShouldBeNil)

			var history []model.HistoryTurn
			So(json.Unmarshal([]byte(h.lastHistory), &history), ShouldBeNil)
			So(len(history), ShouldEqual, 2)
			So(history[0].Role, ShouldEqual, model.RoleUser)
			So(history[0].Parts[0].Text, ShouldEqual, "first")
			So(history[1].Role, ShouldEqual, model.RoleModel)
		})

		Convey("回合角色始终 user/model 交替", func() {
			h := &streamingHandler{chunks: []string{"ok"}}
			srv := httptest.NewServer(h)
			defer srv.Close()

			store := newTestStore(t)
			c := New(srv.URL, store)

			So(c.Send(ctx, "one", nil), ShouldBeNil)
			So(c.Send(ctx, "two", nil), ShouldBeNil)
			So(c.Send(ctx, "three", nil), ShouldBeNil)

			turns := store.Turns()
			So(len(turns), ShouldEqual, 6)
			for i, turn := range turns {
				want := model.RoleUser
				if i%2 == 1 {
					want = model.RoleModel
				}
				So(turn.Role, ShouldEqual, want)
			}
		})

		Convey("附件时用户回合文本带文件名标注", func() {
			h := &streamingHandler{chunks: []string{"ok"}}
			srv := httptest.NewServer(h)
			defer srv.Close()

			store := newTestStore(t)
			c := New(srv.URL, store)

			att := &Attachment{
				Name:        "paper.pdf",
				ContentType: "application/pdf",
				Data:        []byte("%PDF-1.4 fake"),
			}
			So(c.Send(ctx, "Summarize this", att), ShouldBeNil)

			So(h.sawPDF, ShouldBeTrue)
			So(h.lastMessage, ShouldEqual, "Summarize this")

			turns := store.Turns()
			So(turns[0].Text(), ShouldEqual, "Summarize this [PDF: paper.pdf]")
		})

		Convey("非 PDF 附件在发送前被拒绝", func() {
			store := newTestStore(t)
			c := New("http://127.0.0.1:0", store)

			att := &Attachment{Name: "x.txt", ContentType: "text/plain", Data: []byte("hi")}
			err := c.Send(ctx, "hello", att)
			So(err, ShouldNotBeNil)
			So(store.Len(), ShouldEqual, 0)
		})

		Convey("超过 10MB 的附件在发送前被拒绝", func() {
			store := newTestStore(t)
			c := New("http://127.0.0.1:0", store)

			att := &Attachment{
				Name:        "big.pdf",
				ContentType: "application/pdf",
				Data:        make([]byte, maxPDFBytes+1),
			}
			So(c.Send(ctx, "hello", att), ShouldNotBeNil)
			So(store.Len(), ShouldEqual, 0)
		})

		Convey("429 响应把限流消息写入 model 回合", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(model.ErrorResponse{Error: "API rate limit exceeded"})
			}))
			defer srv.Close()

			store := newTestStore(t)
			c := New(srv.URL, store)

			So(c.Send(ctx, "Hello", nil), ShouldBeNil)

			turns := store.Turns()
			So(turns[len(turns)-1].Role, ShouldEqual, model.RoleModel)
			So(turns[len(turns)-1].Text(), ShouldEqual, "API rate limit exceeded")
			So(turns[len(turns)-1].Text(), ShouldNotContainSubstring, "unexpected error")
			So(c.Loading(), ShouldBeFalse)
		})

		Convey("网络失败转成含致歉语的 model 回合", func() {
			store := newTestStore(t)
			// 未监听的端口，连接必然失败
			c := New("http://127.0.0.1:1", store)

			So(c.Send(ctx, "Hello", nil), ShouldBeNil)

			turns := store.Turns()
			So(len(turns), ShouldEqual, 2)
			So(turns[1].Role, ShouldEqual, model.RoleModel)
			So(turns[1].Text(), ShouldContainSubstring, "Sorry, an unexpected error occurred")
			So(c.Loading(), ShouldBeFalse)
		})

		Convey("在途请求未结束时再次发送被拒绝", func() {
			store := newTestStore(t)
			c := New("http://127.0.0.1:0", store)

			c.mu.Lock()
			c.loading = true
			c.mu.Unlock()

			So(c.Send(ctx, "Hello", nil), ShouldEqual, ErrBusy)

			c.mu.Lock()
			c.loading = false
			c.mu.Unlock()
		})
	})
}
