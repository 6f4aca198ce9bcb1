package cmd

import (
	"bufio"
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/binventory/binventory/internal/app"
	"github.com/binventory/binventory/internal/config"
	"github.com/binventory/binventory/internal/log"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive inventory conversation",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.GeminiAPIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable not set")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Please run:")
		fmt.Fprintln(os.Stderr, "  export GEMINI_API_KEY=your-api-key")
		return fmt.Errorf("GEMINI_API_KEY not set")
	}

	logger := log.New(log.Config{Level: cfg.SlogLevel()})

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("starting application: %w", err)
	}
	defer func() { _ = a.Close() }()

	fmt.Println("binventory chat. Commands: /photo <path>, /rollback <operation-id>, /sessions, /quit")
	fmt.Println()

	var sessionID uuid.UUID
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}
		if line == "/sessions" {
			printSessions(a)
			continue
		}

		if path, ok := strings.CutPrefix(line, "/photo "); ok {
			sessionID = ingestPhoto(ctx, a, sessionID, strings.TrimSpace(path))
			continue
		}
		if raw, ok := strings.CutPrefix(line, "/rollback "); ok {
			rollback(ctx, a, strings.TrimSpace(raw))
			continue
		}

		turn, err := a.Chat(ctx, sessionID, line, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		sessionID = turn.SessionID
		printResult(turn)
	}

	if sessionID != uuid.Nil {
		_ = a.EndSession(sessionID)
	}
	return scanner.Err()
}

func ingestPhoto(ctx context.Context, a *app.App, sessionID uuid.UUID, path string) uuid.UUID {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading photo: %v\n", err)
		return sessionID
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	imageRef := filepath.Base(path)

	newID, observations, err := a.IngestImage(ctx, sessionID, imageRef, data, mimeType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyzing photo: %v\n", err)
		return sessionID
	}

	fmt.Printf("analyzed %s, identified %d item(s):\n", imageRef, len(observations))
	for _, obs := range observations {
		fmt.Printf("  - %s (%.0f%%): %s\n", obs.Name, obs.Confidence*100, obs.Description)
	}
	fmt.Printf("mention them with the photo, e.g. \"add these to bin 3\" (photo: %s)\n", imageRef)
	return newID
}

func rollback(ctx context.Context, a *app.App, raw string) {
	opID, err := uuid.Parse(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid operation id %q\n", raw)
		return
	}
	res := a.Rollback(ctx, opID)
	fmt.Println(res.Message)
}

func printSessions(a *app.App) {
	sessions := a.Sessions.All()
	totals := a.Conv.Stats()

	fmt.Printf("%d active session(s), %d message(s), %d analyzed photo(s)\n",
		len(sessions), totals.Messages, totals.Images)
	for _, s := range sessions {
		bin := s.CurrentBin
		if bin == "" {
			bin = "-"
		}
		fmt.Printf("  %s  bin=%s  last active %s\n",
			s.ID, bin, s.LastAccessed.Format("15:04:05"))
	}
}

func printResult(turn *app.TurnResult) {
	res := turn.Result
	fmt.Println(res.Message)

	if res.Disambiguation != nil {
		fmt.Println("which one did you mean?")
		for i, c := range res.Disambiguation.Candidates {
			fmt.Printf("  %d. %s (bin %s, %.0f%%) %s\n", i+1, c.Name, c.Bin, c.Confidence*100, c.Description)
		}
	}
	if opID, ok := res.Data["operation_id"]; ok {
		fmt.Printf("(operation %v, /rollback to undo)\n", opID)
	}
}
