package handler

import (
	"net/http"
	"strings"

	"pomelo/internal/model"
)

// classifyModelError 把模型调用失败映射到错误分类
// 上游 SDK 不提供稳定的错误类型，按消息内容识别。
func classifyModelError(err error) (int, model.ErrorResponse) {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "api key") || strings.Contains(msg, "401"):
		return http.StatusUnauthorized, model.ErrorResponse{
			Error: "Invalid or missing API key",
		}
	case strings.Contains(msg, "quota") || strings.Contains(msg, "rate"):
		return http.StatusTooManyRequests, model.ErrorResponse{
			Error: "API rate limit exceeded",
		}
	case strings.Contains(msg, "model"):
		return http.StatusServiceUnavailable, model.ErrorResponse{
			Error: "Model not available",
		}
	default:
		return http.StatusInternalServerError, model.ErrorResponse{
			Error:   "An error occurred while processing your request.",
			Details: err.Error(),
		}
	}
}
