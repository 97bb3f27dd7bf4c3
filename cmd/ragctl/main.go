package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/rag-chatbot/internal/adapters/cli"
	"github.com/kirillkom/rag-chatbot/internal/bootstrap"
	"github.com/kirillkom/rag-chatbot/internal/config"
	"github.com/kirillkom/rag-chatbot/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	// Logs go to stderr at warn level so command output stays clean.
	slog.SetDefault(logging.NewTextLogger(os.Stderr, "ragctl", "warn"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var app *bootstrap.App
	defer func() {
		if app != nil {
			app.Close()
		}
	}()

	root := cli.NewRootCommand(func(ctx context.Context) (*cli.Services, func(), error) {
		var err error
		app, err = bootstrap.New(ctx, cfg, bootstrap.WithoutQueue())
		if err != nil {
			return nil, nil, err
		}
		return &cli.Services{
			Indexer:  app.IndexUC,
			Answerer: app.AnswerUC,
			Admin:    app.AdminUC,
		}, app.Close, nil
	})
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if app != nil {
			app.Close()
		}
		os.Exit(1)
	}
}
