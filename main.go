package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"crewtui/config"
	"crewtui/crew"
	"crewtui/mcp"
	"crewtui/provider"
	"crewtui/storage"
	"crewtui/tools"
	"crewtui/ui"
)

const Version = "v0.1.0"

func main() {
	firstRun := !config.SystemConfigExists()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if firstRun {
		fmt.Printf("First run: created default configuration at %s\n", config.GetSettingsFilePath())
	}

	config.InitDebugLog(cfg.DataDir())

	sessionStorage, err := storage.NewSessionStorage(cfg.DataDir())
	if err != nil {
		fmt.Printf("Failed to initialize session storage: %v\n", err)
		os.Exit(1)
	}

	memoryStore, err := storage.NewMemoryStore(cfg.DataDir())
	if err != nil {
		fmt.Printf("Failed to open memory store: %v\n", err)
		os.Exit(1)
	}
	defer memoryStore.Close()

	secondary, err := provider.NewSecondary(cfg)
	if err != nil {
		fmt.Printf("Failed to initialize Ollama provider: %v\n", err)
		os.Exit(1)
	}
	warnMissingOllamaModel(secondary, cfg.Ollama.ChatModel)

	// A missing cloud API key degrades to local-only operation rather than
	// refusing to start.
	primary, err := provider.NewPrimary(cfg)
	if err != nil {
		fmt.Printf("Warning: %v; running on Ollama only.\n", err)
		primary = secondary
	}
	fallback := provider.NewFallback(primary, secondary, cfg.RetryAttempts)

	var session *mcp.Session
	if cfg.MCP.Enabled && cfg.MCP.Command != "" {
		session = mcp.NewSession(cfg.MCP.Command, cfg.MCP.Args)
		startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := session.Start(startCtx); err != nil {
			fmt.Printf("Warning: MCP server failed to start: %v; using built-in tools.\n", err)
			session = nil
		}
		cancel()
		if session != nil {
			defer session.Shutdown(context.Background())
		}
	}

	registry := tools.NewRegistry(cfg.AllowedRoots(), memoryStore)
	pipeline := tools.NewPipeline(registry, session, cfg.Confirmation, cfg.ToolTimeout)
	engine := crew.NewEngine(cfg, fallback, pipeline, registry)

	chatSession := loadLastSession(sessionStorage)

	app := ui.NewApp(cfg, engine, sessionStorage, chatSession)

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running crewtui: %v\n", err)
		os.Exit(1)
	}

	if chatSession.ID != "" {
		if err := sessionStorage.SaveCurrentSessionID(chatSession.ID); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("Warning: failed to record current session: %v", err)
		}
	}
}

// warnMissingOllamaModel checks the configured fallback model against the
// server's installed models. An unreachable server is left to the fallback
// layer to report.
func warnMissingOllamaModel(p *provider.OllamaProvider, modelName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	models, err := p.ListModels(ctx)
	if err != nil {
		return
	}
	for _, m := range models {
		if m.Name == modelName {
			return
		}
	}
	fmt.Printf("Warning: Ollama model %q is not installed (try: ollama pull %s).\n", modelName, modelName)
}

// loadLastSession resumes the previous session when one exists, otherwise
// starts a fresh one.
func loadLastSession(sessionStorage *storage.SessionStorage) *storage.Session {
	if id, err := sessionStorage.LoadCurrentSessionID(); err == nil {
		if session, err := sessionStorage.Load(id); err == nil {
			return session
		}
	}
	return &storage.Session{}
}
