package kv

import (
	"context"
	"errors"
)

// ErrNotFound key 不存在
var ErrNotFound = errors.New("kv: key not found")

// Store 持久化键值槽
// 对话历史等小块数据的落盘抽象，可在文件 / Redis 等实现间切换。
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
