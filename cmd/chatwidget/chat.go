// ABOUTME: Interactive chat REPL on top of a mounted widget
// ABOUTME: Lines are sent as messages; slash commands reset, give feedback or show history

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/chatwidget/internal/conversation"
	"github.com/2389/chatwidget/internal/reveal"
	"github.com/2389/chatwidget/internal/widget"
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	var noAnimation bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation with the agent",
		Example: `  # Talk to an agent without a config file
  $ chatwidget chat --account acme --agent support

  # Commands inside the session
  /new, /feedback <message-id> <text>, /history, /help, /quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runChat(ctx, flags, noAnimation, os.Stdin, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&noAnimation, "no-animation", false, "print replies at once instead of revealing them")
	return cmd
}

func runChat(ctx context.Context, flags *rootFlags, noAnimation bool, in io.Reader, out io.Writer) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)
	rec := startMetrics(ctx, cfg.Metrics, logger)

	w, err := widget.Mount(ctx, *cfg, widget.WithLogger(logger), widget.WithMetrics(rec))
	if err != nil {
		return fmt.Errorf("mounting widget: %w", err)
	}
	defer w.Unmount()

	th := w.Theme()
	title := th.Header.Title
	if title == "" {
		title = cfg.Widget.AgentSlug
	}
	color.New(color.Bold).Fprintln(out, title)
	if th.Header.Subtitle != "" {
		color.New(color.FgHiBlack).Fprintln(out, th.Header.Subtitle)
	}
	fmt.Fprintln(out, "Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Fprintln(out)

	tr := newTranscript(out, th.PrimaryColor, rec,
		reveal.WithCharDelay(cfg.Sync.CharDelay),
		reveal.WithEnabled(!noAnimation && !cfg.Sync.DisableAnimation),
	)

	viewCtx, stopView := context.WithCancel(ctx)
	viewDone := make(chan struct{})
	go func() {
		defer close(viewDone)
		tr.run(viewCtx, w.Engine().Subscribe(viewCtx))
	}()
	defer func() {
		stopView()
		<-viewDone
	}()

	err = repl(ctx, w, tr, in, out)
	fmt.Fprintln(out, "\nGoodbye!")
	return err
}

func repl(ctx context.Context, w *widget.Widget, tr *transcript, in io.Reader, out io.Writer) error {
	engine := w.Engine()
	lines := readLines(in)

	for {
		var input string
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			input = strings.TrimSpace(line)
		}
		if input == "" {
			continue
		}

		switch cmd, args, _ := strings.Cut(input, " "); cmd {
		case "/quit", "/exit", "/q":
			return nil

		case "/help":
			printHelp(out)

		case "/history":
			tr.printHistory(engine.Snapshot())

		case "/new":
			if err := engine.Restart(ctx); err != nil {
				fmt.Fprintf(out, "[error] %v\n", err)
				continue
			}
			fmt.Fprintln(out, "Started a new conversation")

		case "/feedback":
			messageID, text, _ := strings.Cut(strings.TrimSpace(args), " ")
			if messageID == "" || strings.TrimSpace(text) == "" {
				fmt.Fprintln(out, "Usage: /feedback <message-id> <text>")
				continue
			}
			if engine.SubmitFeedback(ctx, messageID, strings.TrimSpace(text)) {
				fmt.Fprintln(out, "Thanks for the feedback")
			} else {
				fmt.Fprintln(out, "[error] feedback could not be submitted")
			}

		case "/theme":
			if err := w.RefreshTheme(ctx); err != nil {
				fmt.Fprintf(out, "[error] %v\n", err)
				continue
			}
			fmt.Fprintf(out, "Logo: %s\n", w.Theme().Assets.Logo)

		default:
			if strings.HasPrefix(input, "/") {
				fmt.Fprintf(out, "Unknown command %s, try /help\n", cmd)
				continue
			}
			if err := engine.Send(ctx, input); err != nil {
				switch {
				case errors.Is(err, conversation.ErrSendRejected):
					fmt.Fprintln(out, "[busy] wait for the current reply before sending again")
				default:
					fmt.Fprintf(out, "[error] %v\n", err)
				}
			}
		}
	}
}

// readLines delivers input lines until EOF. When the REPL returns first the
// reader goroutine is left blocked until the process exits.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  /new                      Start a new conversation")
	fmt.Fprintln(out, "  /feedback <id> <text>     Send feedback on an agent reply (ids in /history)")
	fmt.Fprintln(out, "  /history                  Show the conversation so far")
	fmt.Fprintln(out, "  /theme                    Reload the account branding")
	fmt.Fprintln(out, "  /help                     Show this help")
	fmt.Fprintln(out, "  /quit                     Exit")
}
