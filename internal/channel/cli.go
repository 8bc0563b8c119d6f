package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"mangabot/internal/domain"
)

// CLISender is the sender id of the local terminal user.
const CLISender = "local"

// CLI implements domain.Channel for interactive terminal chat. Images are
// printed as their URLs.
type CLI struct {
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	prompt bool

	outMu     sync.Mutex
	thinking  bool
	thinkStop chan struct{}
	thinkDone chan struct{}
}

type CLIConfig struct {
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
	Prompt bool // print "You> " and a spinner, for interactive terminals
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &CLI{
		logger: cfg.Logger,
		in:     cfg.In,
		out:    cfg.Out,
		prompt: cfg.Prompt,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start reads lines until EOF, /quit or ctx is cancelled.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.println("MangaBot CLI. Type a manga title, a chapter number, or /quit to exit.")
	c.showPrompt()

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.showPrompt()
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		c.startThinking()
		bus.Publish(domain.InboundEvent{
			Channel:   c.Name(),
			SenderID:  CLISender,
			Text:      line,
			Timestamp: time.Now(),
		})
	}
}

func (c *CLI) Stop() error {
	c.stopThinking()
	return nil
}

func (c *CLI) SendText(_ context.Context, _ string, text string) error {
	c.stopThinking()
	return c.println(text)
}

func (c *CLI) SendImage(_ context.Context, _ string, imageURL string) error {
	c.stopThinking()
	return c.println("[image] " + imageURL)
}

func (c *CLI) println(s string) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, err := fmt.Fprintln(c.out, s)
	return err
}

func (c *CLI) showPrompt() {
	if !c.prompt {
		return
	}
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprint(c.out, "You> ")
}

func (c *CLI) startThinking() {
	if !c.prompt {
		return
	}
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	c.thinkDone = make(chan struct{})
	go c.spin(c.thinkStop, c.thinkDone)
}

func (c *CLI) spin(stop, done chan struct{}) {
	defer close(done)
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.outMu.Lock()
			fmt.Fprintf(c.out, "\r%s Searching...", frames[i%len(frames)])
			c.outMu.Unlock()
		}
	}
}

func (c *CLI) stopThinking() {
	c.outMu.Lock()
	if !c.thinking {
		c.outMu.Unlock()
		return
	}
	c.thinking = false
	close(c.thinkStop)
	done := c.thinkDone
	c.outMu.Unlock()

	<-done
	c.outMu.Lock()
	_, _ = fmt.Fprint(c.out, "\r\033[K")
	c.outMu.Unlock()
}
