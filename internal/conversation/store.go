package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"pomelo/internal/model"
	"pomelo/internal/pkg/id"
	"pomelo/internal/pkg/kv"
)

// ErrTurnNotFound 指定的回合不存在
var ErrTurnNotFound = errors.New("conversation: turn not found")

// Store 对话存储
// 内存中保存有序的回合列表，通过键值槽持久化。除按 ID 更新正在流式
// 写入的 model 回合外只追加。
type Store struct {
	mu    sync.Mutex
	slot  kv.Store
	key   string
	turns []model.Turn
}

// NewStore 创建对话存储
func NewStore(slot kv.Store, key string) *Store {
	return &Store{
		slot: slot,
		key:  key,
	}
}

// Load 从键值槽加载对话
// 槽不存在或内容损坏时回退为空对话，不向调用方报错。
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = nil

	data, err := s.slot.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log.Warn().Err(err).Str("key", s.key).Msg("failed to load chat history")
		}
		return
	}

	var turns []model.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("stored chat history is corrupted, starting empty")
		return
	}
	s.turns = turns
}

// Save 将对话序列化并持久化
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	turns := s.turns
	if turns == nil {
		turns = []model.Turn{}
	}
	data, err := json.Marshal(turns)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.slot.Set(ctx, s.key, data)
}

// Append 追加回合，返回用于后续更新的回合 ID
func (s *Store) Append(t model.Turn) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = id.New()
	}
	s.turns = append(s.turns, t)
	return t.ID
}

// UpdateTurnText 替换指定回合的文本段
// 流式写入期间按 ID 定位回合，从尾部查找。
func (s *Store) UpdateTurnText(turnID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].ID == turnID {
			s.turns[i].Parts = []model.Part{{Text: text}}
			return nil
		}
	}
	return ErrTurnNotFound
}

// Clear 清空内存中的对话并删除持久化副本
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.turns = nil
	s.mu.Unlock()
	return s.slot.Delete(ctx, s.key)
}

// Turns 返回对话回合的副本
func (s *Store) Turns() []model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len 返回回合数
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// History 以接口历史格式返回全部回合
// 空对话返回空切片而不是 nil，序列化结果为 "[]"。
func (s *Store) History() []model.HistoryTurn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.HistoryTurn, 0, len(s.turns))
	for _, t := range s.turns {
		parts := make([]model.Part, len(t.Parts))
		copy(parts, t.Parts)
		out = append(out, model.HistoryTurn{Role: t.Role, Parts: parts})
	}
	return out
}
