// Command voisy записывает голосовую заметку или пишет ассистенту из терминала.
//
//	voisy record -file note.wav [-realtime] [-max 60s] [-confirm]
//	voisy chat -m "Сколько я потратил на такси?"
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"example.com/kapitallo/backend/internal/ai"
	"example.com/kapitallo/backend/internal/capture"
	"example.com/kapitallo/backend/internal/models"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "record":
		err = runRecord(ctx, os.Args[2:])
	case "chat":
		err = runChat(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("command failed", slog.String("command", os.Args[1]), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: voisy record -file note.wav [-realtime] [-max 60s] [-confirm]")
	fmt.Fprintln(os.Stderr, "       voisy chat -m \"message\"")
}

func commonFlags(fs *flag.FlagSet) (*string, *string, *time.Duration) {
	apiURL := fs.String("api", envOr("VOISY_API_URL", "http://localhost:8080"), "API base URL")
	token := fs.String("token", os.Getenv("VOISY_TOKEN"), "access token")
	timeout := fs.Duration("timeout", 2*time.Minute, "request timeout")
	return apiURL, token, timeout
}

func runRecord(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	apiURL, token, timeout := commonFlags(fs)
	file := fs.String("file", "", "WAV file used as the microphone")
	realtime := fs.Bool("realtime", false, "feed the file at its natural pace")
	maxDuration := fs.Duration("max", 60*time.Second, "stop recording after this duration")
	confirm := fs.Bool("confirm", false, "save parsed transactions without asking")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}
	if *token == "" {
		return errors.New("access token is required (-token or VOISY_TOKEN)")
	}

	recorder := capture.NewRecorder(&capture.WAVDevice{Path: *file, Realtime: *realtime})
	defer recorder.Close()

	if err := recorder.Start(ctx); err != nil {
		return err
	}
	slog.Info("recording started", "file", *file)

	limit := time.NewTimer(*maxDuration)
	defer limit.Stop()

	select {
	case <-recorder.Done():
	case <-limit.C:
		slog.Info("recording limit reached", "seconds", recorder.Elapsed())
	case <-ctx.Done():
		return recorder.Cancel()
	}

	recording, err := recorder.Stop()
	if err != nil {
		return err
	}
	slog.Info("recording stopped", "bytes", len(recording.Data), "duration", recording.Duration.Round(time.Millisecond).String())

	client := newAPIClient(*apiURL, *token, *timeout)
	parsed, err := client.parseVoice(ctx, recording.Base64, recording.MimeType)
	if err != nil {
		return err
	}

	fmt.Printf("Распознано: %s\n", parsed.Transcript)
	for i, tx := range parsed.Transactions {
		fmt.Printf("%d. %-8s %10s  %s%s\n", i+1, tx.Type, tx.Amount.StringFixed(2), tx.Description, categoryMark(tx))
	}

	if !*confirm && !askYes("Сохранить операции?") {
		return nil
	}

	saved, err := client.confirmVoice(ctx, parsed.Transactions)
	if err != nil {
		return err
	}
	fmt.Printf("Сохранено операций: %d\n", saved)
	return nil
}

func runChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	apiURL, token, timeout := commonFlags(fs)
	message := fs.String("m", "", "message to the assistant")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*message) == "" {
		return errors.New("-m is required")
	}
	if *token == "" {
		return errors.New("access token is required (-token or VOISY_TOKEN)")
	}

	client := newAPIClient(*apiURL, *token, *timeout)
	_, err := client.chat(ctx, []ai.Message{{Role: "user", Content: *message}}, func(delta string) error {
		_, err := fmt.Print(delta)
		return err
	})
	fmt.Println()
	return err
}

func categoryMark(tx models.ParsedTransaction) string {
	if tx.CategoryID == nil {
		return "  [без категории]"
	}
	return ""
}

func askYes(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes" || answer == "д" || answer == "да"
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
