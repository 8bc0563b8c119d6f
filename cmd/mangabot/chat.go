package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"mangabot/internal/bus"
	"mangabot/internal/channel"
	"mangabot/internal/domain"

	"github.com/spf13/cobra"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the bot in the terminal",
		Long:  "Reads messages from stdin and prints replies. Images are printed as [image] <url>. Type /quit or press Ctrl+D to exit.",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Keep the terminal readable: only warnings and errors unless configured
	// to write a log file.
	gc := cfg.General
	if gc.LogFile == "" && gc.LogLevel != "debug" {
		gc.LogLevel = "warn"
	}
	log, closeLog, err := newLogger(gc, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	messageBus := bus.New(busBufferSize, logger)
	cli := channel.NewCLI(channel.CLIConfig{
		Logger: logger,
		In:     os.Stdin,
		Out:    os.Stdout,
		Prompt: isTerminal(os.Stdin),
	})

	loop := a.newLoop(messageBus, []domain.Channel{cli})
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()

	// Start blocks in a read, so a signal must not wait for the next line.
	cliDone := make(chan error, 1)
	go func() { cliDone <- cli.Start(ctx, messageBus) }()

	var cliErr error
	select {
	case cliErr = <-cliDone:
	case <-ctx.Done():
	}
	cli.Stop()

	// Closing the bus lets the loop finish queued input (piped stdin) first.
	messageBus.Close()
	<-loopDone
	return cliErr
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
