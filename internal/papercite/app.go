package papercite

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/papercite/papercite/pkg/app"
)

const commandDesc = `Papercite Service

A retrieval and citation service for answering questions about PDF corpora.

This server provides:
  - PDF ingestion with page-accurate chunking and vector embeddings
  - Semantic retrieval over the indexed corpus
  - Grounded question answering with canonical citations
  - Quote verification against source text`

// NewApp creates the papercite application.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return Run(opts)
		}),
	)
}

// Run builds and runs the server with the given options.
func Run(opts *Options) error {
	printBanner()

	ctx := setupSignalContext()

	server, err := NewServer(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return server.Run(ctx)
}

// setupSignalContext returns a context cancelled on SIGINT or SIGTERM.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
		<-ch
		os.Exit(1) // second signal forces exit
	}()

	return ctx
}

func printBanner() {
	fmt.Printf("Starting %s...\n", Name)
}
