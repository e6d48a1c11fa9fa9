package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/offlineai/localchat/core/shell"
	"github.com/offlineai/localchat/core/types"
	"github.com/offlineai/localchat/pkg/client"
	"github.com/offlineai/localchat/pkg/xlog"
	"github.com/spf13/cobra"
)

const chatHelp = `Commands:
  /new            start a new chat with the current agent
  /agents         list agents
  /agent <id>     switch agent
  /chats          list saved chats of the current agent
  /resume <id>    continue a saved chat
  /models         list models
  /model <name>   switch the active model
  /pdf <path>     attach the pages of a PDF to the next message
  /quit           exit
Ctrl+C stops a streaming reply.`

func serverURL() string {
	return envOr("LOCALCHAT_SERVER", "http://127.0.0.1:"+port)
}

func chatCmd() *cobra.Command {
	var (
		server   string
		raw      bool
		save     bool
		thinking bool
		resume   string
	)

	cmd := &cobra.Command{
		Use:   "chat [agent-id]",
		Short: "Chat with a running localchat server from the terminal",
		Args:  cobra.MaximumNArgs(1),
		PreRun: func(cmd *cobra.Command, args []string) {
			// Keep the logs out of the conversation.
			level := "warn"
			if cmd.Flags().Changed("log-level") || os.Getenv("LOG_LEVEL") != "" {
				level = logLevel
			}
			xlog.Init(level, logFormat, os.Stderr)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.NewClient(server, 10*time.Second)

			agentID := ""
			if len(args) > 0 {
				agentID = args[0]
			}

			t, err := newTerminal(cmd.OutOrStdout(), raw, thinking)
			if err != nil {
				return err
			}

			opts := []shell.Option{shell.WithObserver(t)}
			if save {
				opts = append(opts, shell.WithPersister(c))
			}

			s := &session{
				client: c,
				term:   t,
				shell:  shell.New(c, append(opts, shell.WithRenderer(t))...),
			}
			return s.run(cmd.Context(), cmd.InOrStdin(), agentID, resume)
		},
	}
	cmd.Flags().StringVar(&server, "server", serverURL(), "URL of the localchat server")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the reply as it streams instead of rendering markdown at the end")
	cmd.Flags().BoolVar(&save, "save", false, "Save the chat in the server history")
	cmd.Flags().BoolVar(&thinking, "thinking", false, "Print the model reasoning after each reply")
	cmd.Flags().StringVar(&resume, "resume", "", "Id of a saved chat to continue")
	return cmd
}

// terminal renders a single shell tab on a terminal.
type terminal struct {
	out      io.Writer
	raw      bool
	thinking bool
	md       *glamour.TermRenderer

	mu           sync.Mutex
	printed      int
	sawReasoning bool
}

func newTerminal(out io.Writer, raw, thinking bool) (*terminal, error) {
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return nil, fmt.Errorf("markdown renderer: %w", err)
	}
	return &terminal{out: out, raw: raw, thinking: thinking, md: md}, nil
}

func (t *terminal) Render(_ string, v shell.View) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch v.State {
	case shell.StateSubmitting:
		t.printed = 0
		t.sawReasoning = false
	case shell.StateStreaming:
		if v.Live == nil {
			return
		}
		if v.Live.InThinking && !t.sawReasoning {
			t.sawReasoning = true
			fmt.Fprintln(t.out, "(thinking...)")
		}
		if t.raw && len(v.Live.Answer) > t.printed {
			fmt.Fprint(t.out, v.Live.Answer[t.printed:])
			t.printed = len(v.Live.Answer)
		}
	}
}

func (t *terminal) Warning(_, message string) {
	fmt.Fprintf(t.out, "\n! %s\n", message)
}

// Reply prints the finished assistant message.
func (t *terminal) Reply(msg types.ChatMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	text := msg.Text()
	if t.thinking {
		for _, p := range msg.Parts {
			if p.Thinking != "" {
				fmt.Fprintf(t.out, "--- thinking ---\n%s\n----------------\n", p.Thinking)
			}
		}
	}

	if t.raw {
		if len(text) > t.printed {
			fmt.Fprint(t.out, text[t.printed:])
		}
		fmt.Fprintln(t.out)
		return
	}

	out, err := t.md.Render(text)
	if err != nil {
		fmt.Fprintln(t.out, text)
		return
	}
	fmt.Fprint(t.out, out)
}

type session struct {
	client *client.Client
	term   *terminal
	shell  *shell.Shell

	agent   types.Agent
	pending []string
}

func (s *session) run(ctx context.Context, in io.Reader, agentID, resume string) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if err := s.switchAgent(ctx, agentID); err != nil {
		return err
	}
	if resume != "" {
		if err := s.resume(ctx, resume); err != nil {
			return err
		}
	}

	// The first Ctrl+C stops the reply, one at the prompt exits.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				if !s.shell.Cancel(s.agent.ID) {
					stop()
					return
				}
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Fprintf(s.term.out, "Chatting with %s. Type /help for commands.\n", s.agent.Name)
	for {
		fmt.Fprint(s.term.out, "> ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.term.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := s.command(ctx, line)
			if err != nil {
				fmt.Fprintf(s.term.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		msg, err := s.shell.Submit(ctx, s.agent.ID, line, s.pending)
		if err != nil {
			fmt.Fprintf(s.term.out, "error: %v\n", err)
			continue
		}
		s.pending = nil
		s.term.Reply(msg)
	}
}

func (s *session) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(s.term.out, chatHelp)
	case "/new":
		s.shell.Close(s.agent.ID)
		s.shell.Open(s.agent)
		s.pending = nil
		fmt.Fprintln(s.term.out, "New chat.")
	case "/agents":
		list, err := s.client.ListAgents(ctx)
		if err != nil {
			return false, err
		}
		for _, a := range list {
			marker := " "
			if a.ID == s.agent.ID {
				marker = "*"
			}
			fmt.Fprintf(s.term.out, "%s %-24s %s (%s)\n", marker, a.ID, a.Name, a.Type)
		}
	case "/agent":
		if arg == "" {
			return false, errors.New("usage: /agent <id>")
		}
		if err := s.switchAgent(ctx, arg); err != nil {
			return false, err
		}
		fmt.Fprintf(s.term.out, "Chatting with %s.\n", s.agent.Name)
	case "/chats":
		all, err := s.client.Conversations(ctx)
		if err != nil {
			return false, err
		}
		records := all[s.agent.ID]
		if len(records) == 0 {
			fmt.Fprintln(s.term.out, "No saved chats.")
		}
		for _, r := range records {
			fmt.Fprintf(s.term.out, "  %s  %s  %s\n", r.ID, r.Timestamp.Local().Format("2006-01-02 15:04"), r.Title)
		}
	case "/resume":
		if arg == "" {
			return false, errors.New("usage: /resume <chat id>")
		}
		return false, s.resume(ctx, arg)
	case "/models":
		list, err := s.client.Models(ctx)
		if err != nil {
			return false, err
		}
		printModels(s.term.out, list)
	case "/model":
		if arg == "" {
			return false, errors.New("usage: /model <name>")
		}
		current, err := s.client.ChangeModel(ctx, arg)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.term.out, "Model set to %s.\n", current)
	case "/pdf":
		if arg == "" {
			return false, errors.New("usage: /pdf <path>")
		}
		f, err := os.Open(arg)
		if err != nil {
			return false, err
		}
		defer f.Close()

		images, err := s.client.UploadPDF(ctx, filepath.Base(arg), f)
		if err != nil {
			return false, err
		}
		s.pending = append(s.pending, images...)
		fmt.Fprintf(s.term.out, "Attached %d page(s) to the next message.\n", len(images))
	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
	return false, nil
}

// switchAgent opens a tab for the agent with the given id, or for the
// default agent when id is empty.
func (s *session) switchAgent(ctx context.Context, id string) error {
	list, err := s.client.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("cannot reach the server: %w", err)
	}
	for _, a := range list {
		if (id == "" && a.IsDefault) || (id != "" && a.ID == id) {
			s.agent = a
			s.shell.Open(a)
			return nil
		}
	}
	return types.NewNotFoundError("Agent not found")
}

func (s *session) resume(ctx context.Context, chatID string) error {
	all, err := s.client.Conversations(ctx)
	if err != nil {
		return err
	}
	for _, r := range all[s.agent.ID] {
		if r.ID != chatID {
			continue
		}
		if _, err := s.shell.Resume(s.agent, r); err != nil {
			return err
		}
		for _, m := range r.History {
			if m.Role == types.RoleUser {
				fmt.Fprintf(s.term.out, "> %s\n", m.Text())
				continue
			}
			s.term.Reply(m)
		}
		return nil
	}
	return types.NewNotFoundError("History not found")
}

func modelsCmd() *cobra.Command {
	var (
		server  string
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "models [name]",
		Short: "List the available models, or switch the active one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.NewClient(server, 30*time.Second)
			ctx := cmd.Context()

			if len(args) == 1 {
				current, err := c.ChangeModel(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Model set to %s.\n", current)
				return nil
			}

			var (
				list client.ModelList
				err  error
			)
			if refresh {
				list, err = c.RefreshModels(ctx)
			} else {
				list, err = c.Models(ctx)
			}
			if err != nil {
				return err
			}
			printModels(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", serverURL(), "URL of the localchat server")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Ask the server to list the installed models again")
	return cmd
}

func printModels(out io.Writer, list client.ModelList) {
	for _, m := range list.Models {
		marker := " "
		if m == list.CurrentModel {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, m)
	}
}
