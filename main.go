package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/offlineai/localchat/core/agents"
	"github.com/offlineai/localchat/core/backend"
	"github.com/offlineai/localchat/core/conversations"
	"github.com/offlineai/localchat/core/models"
	"github.com/offlineai/localchat/core/pdf"
	"github.com/offlineai/localchat/core/relay"
	"github.com/offlineai/localchat/core/shell"
	"github.com/offlineai/localchat/core/sse"
	"github.com/offlineai/localchat/pkg/xlog"
	"github.com/offlineai/localchat/webui"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
)

var ollamaHost = os.Getenv("OLLAMA_HOST")
var apiURL = os.Getenv("LOCALCHAT_LLM_API_URL")
var apiKey = os.Getenv("LOCALCHAT_LLM_API_KEY")
var backendKind = envOr("LOCALCHAT_BACKEND", "ollama")
var stateDir = os.Getenv("LOCALCHAT_STATE_DIR")
var port = envOr("LOCALCHAT_PORT", "5000")
var contextWindow = envOr("LOCALCHAT_CONTEXT_WINDOW", "16000")
var withHistory = os.Getenv("LOCALCHAT_HISTORY") == "true"
var typingPolicy = envOr("LOCALCHAT_TYPING_POLICY", string(shell.PolicyGlobal))
var modelRefresh = envOr("LOCALCHAT_MODEL_REFRESH", "@every 5m")
var logLevel = envOr("LOG_LEVEL", "info")
var logFormat = os.Getenv("LOG_FORMAT")
var openBrowser = os.Getenv("LOCALCHAT_OPEN_BROWSER") != "false"

func init() {
	if stateDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			panic(err)
		}
		stateDir = cwd
	}
	// An explicitly empty value turns the periodic refresh off.
	if v, ok := os.LookupEnv("LOCALCHAT_MODEL_REFRESH"); ok && v == "" {
		modelRefresh = ""
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	root := &cobra.Command{
		Use:   "localchat",
		Short: "Private chat with local models served by Ollama",
		Long:  "Serves a browser UI on 127.0.0.1 that streams chats to a local Ollama server, with agent presets and PDF attachments.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			xlog.Init(logLevel, logFormat, os.Stdout)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", logFormat, "Log format (text, json)")

	root.AddCommand(
		serveCmd(),
		chatCmd(),
		modelsCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&port, "port", port, "Port to listen on, on 127.0.0.1")
	cmd.Flags().StringVar(&stateDir, "state-dir", stateDir, "Directory holding agents.json, last_model.txt and conversations.json")
	cmd.Flags().BoolVar(&withHistory, "history", withHistory, "Keep chat history in conversations.json")
	cmd.Flags().StringVar(&typingPolicy, "typing-policy", typingPolicy, "Which streaming tabs block sending: global or per-tab")
	cmd.Flags().StringVar(&backendKind, "backend", backendKind, "Inference API: ollama or openai")
	cmd.Flags().BoolVar(&openBrowser, "open", openBrowser, "Open the UI in the default browser once the server is up")
	cmd.Flags().StringVar(&modelRefresh, "model-refresh", modelRefresh, "Cron schedule for refreshing the model list, empty to disable")
	return cmd
}

// newBackend builds the inference client. Only the local Ollama port is
// accepted, whichever API is used to talk to it.
func newBackend() (backend.Backend, error) {
	host, err := backend.ParseHost(ollamaHost)
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		if host, err = backend.ParseHost(apiURL); err != nil {
			return nil, err
		}
	}

	switch backendKind {
	case "ollama":
		return backend.NewOllama(host), nil
	case "openai":
		base := *host
		if base.Path == "" || base.Path == "/" {
			base.Path = "/v1"
		}
		return backend.NewOpenAI(apiKey, base.String()), nil
	}
	return nil, fmt.Errorf("unknown backend %q", backendKind)
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := shell.ParsePolicy(typingPolicy)
	if err != nil {
		return err
	}
	numCtx, err := strconv.Atoi(contextWindow)
	if err != nil || numCtx <= 0 {
		return fmt.Errorf("invalid LOCALCHAT_CONTEXT_WINDOW %q", contextWindow)
	}

	b, err := newBackend()
	if err != nil {
		xlog.Error("Refusing to start", "error", err)
		return err
	}

	os.MkdirAll(stateDir, 0755)

	convs, err := conversations.New(filepath.Join(stateDir, "conversations.json"), withHistory)
	if err != nil {
		return err
	}
	agentStore, err := agents.NewStore(filepath.Join(stateDir, "agents.json"), convs)
	if err != nil {
		return err
	}

	hub := sse.NewHub()
	registry := models.New(ctx, filepath.Join(stateDir, "last_model.txt"), []models.Source{
		{Name: b.Name(), Lister: b, Timeout: 3 * time.Second},
		{Name: "ollama list", Lister: backend.NewCLILister(), Timeout: 10 * time.Second},
	}, models.WithChangeHandler(func(list []string, active string) {
		e, err := sse.NewEvent("models", map[string]any{"models": list, "current_model": active})
		if err != nil {
			xlog.Error("Failed to build models event", "error", err)
			return
		}
		hub.Send(e)
	}))
	if err := registry.Start(modelRefresh); err != nil {
		return err
	}
	defer registry.Stop()

	options := backend.DefaultOptions()
	options.NumCtx = numCtx

	opts := []webui.Option{
		webui.WithAgents(agentStore),
		webui.WithModels(registry),
		webui.WithConversations(convs),
		webui.WithHistory(withHistory),
		webui.WithTypingPolicy(policy),
		webui.WithRelay(relay.New(b, registry, options)),
		webui.WithPDFConverter(pdf.NewConverter()),
		webui.WithHub(hub),
	}
	if openBrowser {
		opts = append(opts, webui.WithReadyHandler(func(url string) {
			if err := browser.OpenURL(url); err != nil {
				xlog.Warn("Could not open the browser", "url", url, "error", err)
			}
		}))
	}
	app := webui.NewApp(opts...)

	addr := net.JoinHostPort("127.0.0.1", port)
	xlog.Info("Starting localchat", "address", "http://"+addr, "backend", b.Name(), "model", registry.Active(), "history", withHistory)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		xlog.Info("Shutting down")
		return app.ShutdownWithTimeout(5 * time.Second)
	}
}
