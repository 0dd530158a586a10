package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pomelo/internal/conversation"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the persisted conversation",
	Long:  `Export the locally persisted conversation as structured JSON or a Markdown transcript.`,
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	flags := exportCmd.Flags()
	flags.StringVarP(&exportFormat, "format", "f", "json", "export format (json/markdown)")
	flags.StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	slot, err := newHistorySlot(cfg)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}

	store := conversation.NewStore(slot, cfg.History.Key)
	store.Load(context.Background())

	var data []byte
	switch exportFormat {
	case "json":
		data, err = store.ExportJSON(cfg.Client.Title)
		if err != nil {
			return fmt.Errorf("failed to export: %w", err)
		}
	case "markdown", "md":
		data = []byte(store.ExportMarkdown(cfg.Client.Title, cfg.Client.AssistantName))
	default:
		return fmt.Errorf("unsupported format: %s", exportFormat)
	}

	if exportOutput == "" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(exportOutput, data, 0o644)
}
