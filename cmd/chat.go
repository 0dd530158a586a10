package cmd

import (
	"bufio"
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pomelo/internal/client"
	"pomelo/internal/conversation"
)

var chatPDFPath string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive terminal chat against a running Pomelo server.
History is persisted locally and restored on the next session.

Commands inside the session:
  /clear   clear the conversation and its persisted copy
  /quit    exit`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	flags := chatCmd.Flags()
	flags.String("server", "http://localhost:7080", "chat server base URL")
	flags.StringVar(&chatPDFPath, "pdf", "", "attach a PDF file to the first message")

	_ = viper.BindPFlag("client.server_url", flags.Lookup("server"))
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	slot, err := newHistorySlot(cfg)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}

	ctx := context.Background()
	store := conversation.NewStore(slot, cfg.History.Key)
	store.Load(ctx)

	// 流式输出：每次回调带累计文本，只打印新增部分
	printed := 0
	c := client.New(cfg.Client.ServerURL, store, client.WithOnUpdate(func(acc string) {
		fmt.Print(acc[printed:])
		printed = len(acc)
	}))

	att, err := loadAttachment(chatPDFPath)
	if err != nil {
		return err
	}

	if n := store.Len(); n > 0 {
		fmt.Printf("Restored %d messages. /clear to start over.\n", n)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/clear":
			if err := store.Clear(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to clear history")
			}
			fmt.Println("Conversation cleared.")
			continue
		}

		printed = 0
		if err := c.Send(ctx, line, att); err != nil {
			fmt.Printf("Cannot send: %v\n", err)
			continue
		}
		fmt.Println()

		// 附件只随第一条消息发送
		att = nil
	}
}

// loadAttachment 从路径加载 PDF 附件
func loadAttachment(path string) (*client.Attachment, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/pdf"
	}

	return &client.Attachment{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}
