package client

import (
	"context"
	"errors"
	"io"
	"strings"

	"pomelo/internal/conversation"
)

// reducer 把一次请求的流式响应逐块折叠进指定回合
// 每收到一块就用累计文本整体重写回合，中途的任何已写值都是终值的前缀。
type reducer struct {
	store    *conversation.Store
	turnID   string
	acc      strings.Builder
	onUpdate func(accumulated string)
}

func newReducer(store *conversation.Store, turnID string, onUpdate func(string)) *reducer {
	return &reducer{
		store:    store,
		turnID:   turnID,
		onUpdate: onUpdate,
	}
}

// consume 顺序读取 body 并更新回合文本，直到流结束
// 消费方放弃（context 取消）时保留已累计的部分文本，不回滚。
func (r *reducer) consume(ctx context.Context, body io.Reader) error {
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			r.acc.Write(buf[:n])
			if uerr := r.store.UpdateTurnText(r.turnID, r.acc.String()); uerr != nil {
				return uerr
			}
			if r.onUpdate != nil {
				r.onUpdate(r.acc.String())
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				// 主动放弃，部分内容作为该回合的最终文本
				return nil
			}
			return err
		}
	}
}
