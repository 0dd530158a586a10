package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"pomelo/internal/config"
	"pomelo/internal/model"
)

// Client AI 能力层客户端
// 职责: 封装模型访问，提供统一接口
type Client struct {
	cfg       *config.AIConfig
	chatChain *ChatChain // 对话链
}

// NewClient 创建 AI 客户端
func NewClient(ctx context.Context, cfg *config.AIConfig) (*Client, error) {
	chatChain, err := NewChatChain(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat chain: %w", err)
	}

	return &Client{
		cfg:       cfg,
		chatChain: chatChain,
	}, nil
}

// ChatRequest AI 对话请求
type ChatRequest struct {
	Message string
	History []model.HistoryTurn
}

// ChatStream 流式对话
func (c *Client) ChatStream(ctx context.Context, req *ChatRequest) (*schema.StreamReader[*schema.Message], error) {
	return c.chatChain.Stream(ctx, req)
}
