package ai

import (
	"context"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"pomelo/internal/ai/component"
	"pomelo/internal/config"
	"pomelo/internal/model"
)

// ChatChain 对话链 - 封装 Eino ChatModel
// 职责: 历史回合到 Eino 消息的转换，流式调用模型
type ChatChain struct {
	chatModel einomodel.ChatModel
}

// NewChatChain 创建对话链
func NewChatChain(ctx context.Context, cfg *config.AIConfig) (*ChatChain, error) {
	chatModel, err := component.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &ChatChain{
		chatModel: chatModel,
	}, nil
}

// Stream 流式执行对话
func (c *ChatChain) Stream(ctx context.Context, req *ChatRequest) (*schema.StreamReader[*schema.Message], error) {
	return c.chatModel.Stream(ctx, buildMessages(req))
}

// buildMessages 把历史回合和当前消息转成 Eino 消息序列
// model 角色映射为 assistant，其余视为 user。
func buildMessages(req *ChatRequest) []*schema.Message {
	messages := make([]*schema.Message, 0, len(req.History)+1)
	for _, turn := range req.History {
		text := joinParts(turn.Parts)
		if turn.Role == model.RoleModel {
			messages = append(messages, schema.AssistantMessage(text, nil))
		} else {
			messages = append(messages, schema.UserMessage(text))
		}
	}
	return append(messages, schema.UserMessage(req.Message))
}

func joinParts(parts []model.Part) string {
	if len(parts) == 1 {
		return parts[0].Text
	}
	text := ""
	for _, p := range parts {
		text += p.Text
	}
	return text
}
