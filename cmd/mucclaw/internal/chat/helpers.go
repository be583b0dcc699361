package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/tinyland-inc/mucclaw/cmd/mucclaw/internal"
	"github.com/tinyland-inc/mucclaw/pkg/bot"
	"github.com/tinyland-inc/mucclaw/pkg/bus"
	"github.com/tinyland-inc/mucclaw/pkg/config"
	"github.com/tinyland-inc/mucclaw/pkg/e2ee"
	"github.com/tinyland-inc/mucclaw/pkg/logger"
	"github.com/tinyland-inc/mucclaw/pkg/providers"
	"github.com/tinyland-inc/mucclaw/pkg/session"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
	"github.com/tinyland-inc/mucclaw/pkg/xmpp"
)

const (
	consoleSelf = "mucclaw@localhost/console"
	consolePeer = "you@localhost/console"
)

// console is a bot session on a loopback transport.
type console struct {
	bus     *bus.MessageBus
	timeout time.Duration
	done    chan error
}

func startConsole(ctx context.Context, cfg *config.Config) (*console, error) {
	gen, err := providers.CreateGenerator(cfg.Responder)
	if err != nil {
		return nil, fmt.Errorf("error creating generator: %w", err)
	}

	opts := internal.SessionOptions(cfg, consoleSelf)
	opts.Room = ""
	opts.AllowFrom = []string{consolePeer}
	opts.AllowAffiliates = false

	b := bus.NewMessageBus()
	ctrl := bot.New(bot.Options{
		Transport: xmpp.NewLoopback(consoleSelf, b),
		Session:   session.New(opts, nil),
		Crypto:    e2ee.None{},
		Generator: gen,
		Bus:       b,
	})

	c := &console{
		bus:     b,
		timeout: cfg.Timeouts.Generate() + cfg.Timeouts.Send(),
		done:    make(chan error, 1),
	}
	go func() { c.done <- ctrl.Run(ctx) }()
	return c, nil
}

func consoleMessage(text string) stanza.Message {
	msg := stanza.NewMessage(consoleSelf, stanza.TypeChat, text)
	msg.From = consolePeer
	return msg
}

// ask sends text and waits for the reply. A generation failure shows as a
// timeout since the bot stays silent.
func (c *console) ask(ctx context.Context, text string) (string, error) {
	if err := c.bus.PublishInbound(ctx, consoleMessage(text)); err != nil {
		return "", err
	}
	wctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	select {
	case err := <-c.done:
		if err == nil {
			err = errors.New("console session ended")
		}
		return "", err
	default:
	}
	reply, ok := c.bus.SubscribeOutbound(wctx)
	if !ok {
		return "", errors.New("no reply")
	}
	return reply.Body, nil
}

func chatCmd(configPath, message string, debug bool) error {
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if err := internal.SetupLogging(cfg, debug); err != nil {
		return fmt.Errorf("error setting up logging: %w", err)
	}
	defer logger.DisableFileLogging()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := startConsole(ctx, cfg)
	if err != nil {
		return err
	}

	if message != "" {
		reply, err := c.ask(ctx, message)
		if err != nil {
			return fmt.Errorf("error processing message: %w", err)
		}
		fmt.Printf("\n%s %s\n", internal.Logo, reply)
		return nil
	}

	fmt.Printf("%s Interactive mode (Ctrl+C to exit)\n\n", internal.Logo)
	interactiveMode(ctx, c)
	return nil
}

func interactiveMode(ctx context.Context, c *console) {
	prompt := fmt.Sprintf("%s You: ", internal.Logo)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".mucclaw_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(ctx, c, os.Stdin, os.Stdout)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !converse(ctx, c, line, os.Stdout) {
			return
		}
	}
}

func simpleInteractiveMode(ctx context.Context, c *console, in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s You: ", internal.Logo)
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}
		if !converse(ctx, c, line, out) {
			return
		}
	}
}

// converse handles one input line. It returns false when the user leaves.
func converse(ctx context.Context, c *console, line string, out io.Writer) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}
	if input == "exit" || input == "quit" {
		fmt.Fprintln(out, "Goodbye!")
		return false
	}

	reply, err := c.ask(ctx, input)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return true
	}
	fmt.Fprintf(out, "\n%s %s\n\n", internal.Logo, reply)
	return true
}
