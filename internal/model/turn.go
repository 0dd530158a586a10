package model

import (
	"strings"
	"time"

	"pomelo/internal/pkg/id"
)

// 回合角色
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part 回合中的一段文本
type Part struct {
	Text string `json:"text"`
}

// Turn 对话回合
// 约定 user / model 回合交替出现，由产生方保证，数据层不强制。
type Turn struct {
	ID        string    `json:"id,omitempty"`
	Role      string    `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTurn 创建带 ID 和时间戳的回合
func NewTurn(role, text string) Turn {
	return Turn{
		ID:        id.New(),
		Role:      role,
		Parts:     []Part{{Text: text}},
		CreatedAt: time.Now(),
	}
}

// Text 拼接回合的全部文本段
func (t *Turn) Text() string {
	if len(t.Parts) == 1 {
		return t.Parts[0].Text
	}
	var sb strings.Builder
	for _, p := range t.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// HistoryTurn 发送给聊天接口的历史回合格式
type HistoryTurn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}
