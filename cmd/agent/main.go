package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"donna-ai/internal/adapter/conversation"
	"donna-ai/internal/adapter/llm"
	"donna-ai/internal/adapter/tool"
	"donna-ai/internal/domain"
	"donna-ai/internal/infra/config"
	"donna-ai/internal/infra/logger"
	"donna-ai/internal/infra/tracer"
	"donna-ai/internal/usecase"
)

func main() {
	configPath := "./config.yaml"
	for i := 1; i < len(os.Args); i++ {
		switch {
		case os.Args[i] == "--help" || os.Args[i] == "-h":
			showUsage()
			return
		case os.Args[i] == "--config" && i+1 < len(os.Args):
			configPath = os.Args[i+1]
			i++
		case strings.HasPrefix(os.Args[i], "--config="):
			configPath = strings.TrimPrefix(os.Args[i], "--config=")
		}
	}

	if err := run(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`donna-ai - Personal assistant agent

USAGE:
    donna-ai [FLAGS]

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: ANTHROPIC_API_KEY, DONNA_DATA_DIR, DONNA_LOG_LEVEL`)
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := conversation.NewSQLiteStore(filepath.Join(cfg.Store.DataDir, "conversation.db"))
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	defer store.Close()

	tasks, err := tool.NewSQLiteTaskBackend(filepath.Join(cfg.Store.DataDir, "tasks.db"))
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer tasks.Close()

	invoices, err := tool.NewSQLiteInvoiceBackend(filepath.Join(cfg.Store.DataDir, "invoices.db"))
	if err != nil {
		return fmt.Errorf("open invoice store: %w", err)
	}
	defer invoices.Close()

	contacts, err := tool.NewFileContactsBackend(cfg.Store.DataDir)
	if err != nil {
		return fmt.Errorf("open contacts store: %w", err)
	}

	ledger := usecase.NewInMemoryUndoLedger()
	sessions := tool.NewSessionManager()

	registry, err := buildRegistry(cfg, log, tasks, invoices, contacts, sessions, ledger)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}

	provider := llm.NewCircuitBreakerProvider(
		llm.NewAnthropicProvider(cfg.LLM, log),
		cfg.LLM.Breaker,
		log,
	)

	agent := usecase.NewAgent(usecase.AgentDeps{
		LLM:   provider,
		Store: store,
		Tools: registrySource{registry},
		State: func(ctx context.Context, principal string) domain.SessionState {
			count, err := invoices.Count(ctx, principal)
			if err != nil {
				log.Warn("invoice count failed", "error", err)
			}
			return domain.SessionState{
				AccountingActive: sessions.Active(principal),
				InvoiceCount:     count,
			}
		},
		ContextBuilder: usecase.NewContextBuilder(cfg.Agent.SystemPrompt, cfg.LLM.Model, cfg.LLM.MaxTokens),
		Locker:         usecase.NewRunLocker(),
		Logger:         log,
		MaxTurns:       cfg.Agent.MaxTurns,
		HistoryWindow:  cfg.Agent.HistoryWindow,
	})

	log.Info("donna-ai started", "model", cfg.LLM.Model, "data_dir", cfg.Store.DataDir)
	return chatLoop(ctx, agent, log)
}

// registrySource adapts the registry to the agent's tool source.
type registrySource struct {
	reg *tool.Registry
}

func (s registrySource) Snapshot(principal string, state domain.SessionState) domain.ToolExecutor {
	return s.reg.Snapshot(principal, state)
}

func buildRegistry(
	cfg *config.Config,
	log *slog.Logger,
	tasks tool.TaskBackend,
	invoices tool.InvoiceBackend,
	contacts tool.ContactsBackend,
	sessions *tool.SessionManager,
	ledger domain.UndoLedger,
) (*tool.Registry, error) {
	registry := tool.NewRegistry(log)

	if err := registry.AddGroup("tasks", tool.Always,
		tool.NewGetTasksTool(tasks, log),
		tool.NewAddTaskTool(tasks, log),
		tool.NewCompleteTasksTool(tasks, ledger, log),
		tool.NewDeleteTasksTool(tasks, ledger, log),
		tool.NewEditTaskTool(tasks, log),
		tool.NewUndoTool(tasks, ledger, log),
	); err != nil {
		return nil, err
	}

	if err := registry.AddGroup("contacts", tool.Always,
		tool.NewLookupContactTool(contacts, log),
		tool.NewSaveContactTool(contacts, log),
	); err != nil {
		return nil, err
	}

	if cfg.Tools.EmailEnabled {
		backend := tool.NewMockEmailBackend()
		limiter := tool.NewRateLimiter(cfg.Tools.SendLimit, cfg.Tools.SendWindow)
		if err := registry.AddGroup("email", tool.Always,
			tool.NewSendEmailTool(backend, contacts, limiter, log),
			tool.NewCheckInboxTool(backend, log),
			tool.NewReadEmailTool(backend, log),
			tool.NewReplyEmailTool(backend, limiter, log),
		); err != nil {
			return nil, err
		}
	}

	if cfg.Tools.MessengerEnabled {
		limiter := tool.NewRateLimiter(cfg.Tools.SendLimit, cfg.Tools.SendWindow)
		if err := registry.AddGroup("messaging", tool.Always,
			tool.NewSendMessageTool(&tool.MockMessengerBackend{}, limiter, log),
		); err != nil {
			return nil, err
		}
	}

	// Accounting tools appear only while a review session is open.
	if err := registry.AddGroup("accounting",
		func(_ string, state domain.SessionState) bool { return state.AccountingActive },
		tool.NewAccountingStatusTool(sessions, log),
		tool.NewUpdateTransactionsTool(sessions, log),
		tool.NewSkipTransactionTool(sessions, log),
		tool.NewExportAccountingTool(sessions, log),
	); err != nil {
		return nil, err
	}

	// Invoice tools appear only while captured invoices are pending.
	if err := registry.AddGroup("invoices",
		func(_ string, state domain.SessionState) bool { return state.InvoiceCount > 0 },
		tool.NewInvoiceStatusTool(invoices, log),
		tool.NewListInvoicesTool(invoices, log),
		tool.NewUpdateInvoiceTool(invoices, log),
		tool.NewDeleteInvoiceTool(invoices, log),
		tool.NewExportInvoicesTool(invoices, log),
	); err != nil {
		return nil, err
	}

	return registry, nil
}

// chatLoop reads user messages from stdin until EOF or signal.
func chatLoop(ctx context.Context, agent *usecase.Agent, log *slog.Logger) error {
	principal := os.Getenv("DONNA_PRINCIPAL")
	if principal == "" {
		principal = "local"
	}

	fmt.Println("donna-ai ready. Type a message, or Ctrl-D to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		result, err := agent.Run(ctx, principal, text)
		if err != nil {
			log.Error("run failed", "error", err)
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Println(result.FinalText)
	}

	log.Info("donna-ai stopped")
	return scanner.Err()
}
