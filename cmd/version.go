package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/binventory/binventory/internal/config"
)

// Version information, injected at build time via ldflags.
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	fmt.Printf("binventory %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)

	cfg, err := config.Load()
	if err != nil {
		// Version output is still useful without a valid config.
		fmt.Printf("\nConfiguration: unavailable (%v)\n", err)
		return nil
	}

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Chat model:     %s\n", cfg.ChatModel)
	fmt.Printf("  Embedder model: %s\n", cfg.EmbedderModel)
	fmt.Printf("  Vision model:   %s\n", cfg.VisionModel)
	fmt.Printf("  Session TTL:    %s\n", cfg.SessionTTL)
	fmt.Printf("  Tool rounds:    %d\n", cfg.MaxToolRounds)
	fmt.Printf("  Database:       %s:%d/%s\n", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)

	if cfg.GeminiAPIKey != "" {
		fmt.Printf("  GEMINI_API_KEY: configured\n")
	} else {
		fmt.Printf("  GEMINI_API_KEY: not set\n")
	}
	return nil
}
