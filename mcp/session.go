// Package mcp hosts the optional external tool session and the tool format
// converters shared by the providers.
//
// When [mcp] is enabled in the user config, tool calls are routed to a single
// stdio MCP server process instead of the built-in implementations. The
// session is started once and reused; a failed call resets it once before
// giving up.
package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"crewtui/config"
)

const protocolVersion = "2025-06-18"

// Session manages one stdio MCP server process.
type Session struct {
	command string
	args    []string

	mu      sync.Mutex
	client  *client.Client
	process *exec.Cmd
	tools   []mcptypes.Tool
	running bool
}

func NewSession(command string, args []string) *Session {
	return &Session{
		command: command,
		args:    args,
	}
}

// Start launches the server process, initializes the protocol and caches the
// advertised tool list. Calling Start on a running session is an error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("mcp session already running")
	}
	return s.startLocked(ctx)
}

func (s *Session) startLocked(ctx context.Context) error {
	var capturedCmd *exec.Cmd
	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		capturedCmd = cmd
		return cmd, nil
	}

	mcpClient, err := client.NewStdioMCPClientWithOptions(
		s.command,
		os.Environ(),
		s.args,
		transport.WithCommandFunc(cmdFunc),
	)
	if err != nil {
		return fmt.Errorf("failed to start mcp server: %w", err)
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "crewtui",
				Version: "1.0.0",
			},
		},
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize mcp server: %w", err)
	}

	toolsResult, err := mcpClient.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to list mcp tools: %w", err)
	}

	s.client = mcpClient
	s.process = capturedCmd
	s.tools = toolsResult.Tools
	s.running = true

	if config.DebugLog != nil {
		pid := 0
		if capturedCmd != nil && capturedCmd.Process != nil {
			pid = capturedCmd.Process.Pid
		}
		config.DebugLog.Printf("[MCP] Started %s (pid %d), %d tools", s.command, pid, len(s.tools))
	}

	return nil
}

// Tools returns the tool list advertised at startup.
func (s *Session) Tools() []mcptypes.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tools
}

// Running reports whether the server process is up.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// CallTool invokes a tool on the server. On transport failure the session is
// reset and the call retried once against the fresh process.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*mcptypes.CallToolResult, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, fmt.Errorf("mcp session not running")
	}
	c := s.client
	s.mu.Unlock()

	req := mcptypes.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.CallTool(ctx, req)
	if err == nil {
		return result, nil
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] CallTool %s failed (%v), resetting session", name, err)
	}

	if resetErr := s.Reset(ctx); resetErr != nil {
		return nil, fmt.Errorf("mcp call failed and session reset failed: %w", resetErr)
	}

	s.mu.Lock()
	c = s.client
	s.mu.Unlock()

	result, err = c.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp call failed after reset: %w", err)
	}
	return result, nil
}

// Reset tears down the current process and starts a fresh one.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shutdownLocked(ctx)
	return s.startLocked(ctx)
}

// Shutdown stops the server process. Safe to call on a stopped session.
func (s *Session) Shutdown(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownLocked(ctx)
}

func (s *Session) shutdownLocked(ctx context.Context) {
	if !s.running {
		return
	}
	s.running = false

	if s.client != nil {
		closeCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		defer cancel()

		closeDone := make(chan error, 1)
		go func() {
			closeDone <- s.client.Close()
		}()

		select {
		case <-closeDone:
		case <-closeCtx.Done():
			// Close is hanging, fall through to kill
		}
	}

	if s.process != nil && s.process.Process != nil {
		if err := s.process.Process.Kill(); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[MCP] Error killing server process: %v", err)
		}
	}

	s.client = nil
	s.process = nil
	s.tools = nil
}
