package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"pomelo/internal/config"
	"pomelo/internal/pkg/kv"
)

// newHistorySlot 按配置创建对话历史的键值槽
func newHistorySlot(cfg *config.Config) (kv.Store, error) {
	switch cfg.History.Backend {
	case "redis":
		return kv.NewRedisStore(&cfg.Redis)
	case "file", "":
		dir := cfg.History.Dir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to resolve home dir: %w", err)
			}
			dir = filepath.Join(home, ".pomelo")
		}
		return kv.NewFileStore(dir)
	default:
		return nil, fmt.Errorf("unsupported history backend: %s", cfg.History.Backend)
	}
}
