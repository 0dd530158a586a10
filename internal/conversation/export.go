package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pomelo/internal/model"
)

// ExportStats 导出统计
type ExportStats struct {
	TotalMessages int `json:"totalMessages"`
	TotalTokens   int `json:"totalTokens"`
}

// ExportedTurn 导出格式的回合，附带格式化时间
type ExportedTurn struct {
	model.Turn
	FormattedTime string `json:"formattedTime,omitempty"`
}

// ExportDocument 结构化导出文档
type ExportDocument struct {
	Title      string         `json:"title"`
	ExportDate time.Time      `json:"exportDate"`
	Stats      ExportStats    `json:"stats"`
	Messages   []ExportedTurn `json:"messages"`
}

const timeLayout = "2006-01-02 15:04"

// EstimateTokens 估算回合文本的 token 数
// 粗略按 4 字符 1 token 向上取整，导出格式依赖该值保持兼容。
func EstimateTokens(turns []model.Turn) int {
	chars := 0
	for i := range turns {
		chars += len(turns[i].Text())
	}
	return (chars + 3) / 4
}

// ExportJSON 导出结构化 JSON
func (s *Store) ExportJSON(title string) ([]byte, error) {
	turns := s.Turns()

	messages := make([]ExportedTurn, 0, len(turns))
	for _, t := range turns {
		et := ExportedTurn{Turn: t}
		if !t.CreatedAt.IsZero() {
			et.FormattedTime = t.CreatedAt.Format(timeLayout)
		}
		messages = append(messages, et)
	}

	doc := ExportDocument{
		Title:      title,
		ExportDate: time.Now(),
		Stats: ExportStats{
			TotalMessages: len(turns),
			TotalTokens:   EstimateTokens(turns),
		},
		Messages: messages,
	}

	return json.MarshalIndent(doc, "", "  ")
}

// ExportMarkdown 导出 Markdown 格式的对话记录
func (s *Store) ExportMarkdown(title, assistantName string) string {
	turns := s.Turns()

	var sb strings.Builder
	sb.WriteString("# " + title + "\n\n")
	sb.WriteString("Exported: " + time.Now().Format(timeLayout) + "\n")
	sb.WriteString(fmt.Sprintf("Messages: %d\n\n", len(turns)))
	sb.WriteString("---\n")

	for _, t := range turns {
		label := "You"
		if t.Role == model.RoleModel {
			label = assistantName
		}
		sb.WriteString("\n## " + label)
		if !t.CreatedAt.IsZero() {
			sb.WriteString(" (" + t.CreatedAt.Format(timeLayout) + ")")
		}
		sb.WriteString("\n\n")
		sb.WriteString(t.Text())
		sb.WriteString("\n")
	}

	return sb.String()
}
