/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

// Package mcpserver wraps the mcp-go server with the transports, hooks, and
// authentication used by LedgerMCP.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/PivotLLM/LedgerMCP/global"
)

// Option defines a function type for configuring the MCPServer.
type Option func(*MCPServer)

// MCPServerTransport is an interface that abstracts the different transport types
//
//goland:noinspection GoNameStartsWithPackageName
type MCPServerTransport interface {
	Start(addr string) error
	Shutdown(ctx context.Context) error
}

// AuthenticatedTransport wraps an underlying transport with authentication middleware
type AuthenticatedTransport struct {
	underlying MCPServerTransport
	handler    http.Handler
	server     *http.Server
	logger     global.Logger
}

// NewAuthenticatedTransport creates a new authenticated transport wrapper
func NewAuthenticatedTransport(underlying MCPServerTransport, middleware func(http.Handler) http.Handler, logger global.Logger) *AuthenticatedTransport {
	handler, ok := underlying.(http.Handler)
	if !ok {
		if logger != nil {
			logger.Error("Underlying transport does not implement http.Handler")
		}
		return nil
	}

	return &AuthenticatedTransport{
		underlying: underlying,
		handler:    middleware(handler),
		logger:     logger,
	}
}

// Start starts the authenticated transport
func (at *AuthenticatedTransport) Start(addr string) error {
	if at.logger != nil {
		at.logger.Infof("Starting authenticated transport on %s", addr)
	}

	at.server = &http.Server{
		Addr:         addr,
		Handler:      at.handler,
		ReadTimeout:  0,
		WriteTimeout: 3600 * time.Second, // allow long-running SSE streams
		IdleTimeout:  120 * time.Second,
	}

	return at.server.ListenAndServe()
}

// Shutdown shuts down the authenticated transport
func (at *AuthenticatedTransport) Shutdown(ctx context.Context) error {
	if at.server != nil {
		return at.server.Shutdown(ctx)
	}
	return nil
}

// ServeHTTP implements http.Handler so this transport can itself be wrapped
func (at *AuthenticatedTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if at.handler != nil {
		at.handler.ServeHTTP(w, r)
	} else {
		http.Error(w, "Handler not configured", http.StatusInternalServerError)
	}
}

// MCPServer represents the server instance.
type MCPServer struct {
	listen         string
	srv            *server.MCPServer
	sseServer      *server.SSEServer
	httpServer     *server.StreamableHTTPServer
	transport      MCPServerTransport
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	logger         global.Logger
	debug          bool
	name           string
	version        string
	noStreaming    bool
	toolProviders  []global.ToolProvider
	authMiddleware *AuthMiddleware
}

func WithListen(listen string) Option {
	return func(m *MCPServer) {
		m.listen = listen
	}
}

func WithLogger(logger global.Logger) Option {
	return func(m *MCPServer) {
		m.logger = logger
	}
}

func WithDebug(debug bool) Option {
	return func(m *MCPServer) {
		m.debug = debug
	}
}

func WithName(name string) Option {
	return func(m *MCPServer) {
		m.name = name
	}
}

func WithVersion(version string) Option {
	return func(m *MCPServer) {
		m.version = version
	}
}

func WithToolProviders(providers []global.ToolProvider) Option {
	return func(s *MCPServer) {
		s.toolProviders = providers
	}
}

func WithNoStreaming(noStreaming bool) Option {
	return func(m *MCPServer) {
		m.noStreaming = noStreaming
	}
}

func WithAuthMiddleware(authMiddleware *AuthMiddleware) Option {
	return func(m *MCPServer) {
		m.authMiddleware = authMiddleware
	}
}

// New creates a new MCPServer instance with the provided options.
func New(options ...Option) (*MCPServer, error) {

	m := &MCPServer{
		listen:      "localhost:8080",
		name:        "LedgerMCP",
		version:     "0.0.1",
		noStreaming: false,
		wg:          sync.WaitGroup{},
	}

	for _, opt := range options {
		opt(m)
	}

	if m.logger == nil {
		return nil, fmt.Errorf("logger not set")
	}

	hooks := &server.Hooks{}
	hooks.AddAfterListTools(m.hookAfterListTools)
	hooks.AddAfterCallTool(m.hookAfterCallTool)

	serverOptions := []server.ServerOption{
		server.WithLogging(),
		server.WithRecovery(),
		WithRequestLogging(m.logger),
		server.WithHooks(hooks),
	}

	m.srv = server.NewMCPServer(m.name, m.version, serverOptions...)

	// Tools are in a separate file for better organization
	m.AddTools()

	return m, nil
}

// Start runs the MCP server in a background goroutine.
func (s *MCPServer) Start() error {
	if s.logger == nil {
		return fmt.Errorf("logger not set")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if s.noStreaming {
			s.logger.Infof("MCP server listening on TCP port %s (HTTP mode)", s.listen)
			s.httpServer = server.NewStreamableHTTPServer(s.srv)
			s.transport = s.httpServer
		} else {
			s.logger.Infof("MCP server listening on TCP port %s (SSE mode)", s.listen)
			s.sseServer = server.NewSSEServer(s.srv)
			s.transport = s.sseServer
		}

		if s.authMiddleware != nil {
			s.logger.Info("Applying HTTP authentication middleware")
			authenticated := NewAuthenticatedTransport(s.transport, s.authMiddleware.Middleware, s.logger)
			if authenticated == nil {
				s.logger.Error("Failed to create authenticated transport, continuing without HTTP authentication")
			} else {
				s.transport = authenticated
			}
		}

		// Shutdown produces an expected error from Start; nothing to log
		_ = s.transport.Start(s.listen)
	}()
	return nil
}

// Stop signals the MCP server to shut down and waits for the goroutine to exit.
func (s *MCPServer) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}

	if s.transport != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.transport.Shutdown(ctx)
	}

	waitCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		return nil
	case <-time.After(1 * time.Second):
		return nil
	}
}

// WithRequestLogging is a middleware function that logs request details.
func WithRequestLogging(logger global.Logger) server.ServerOption {
	return server.WithToolHandlerMiddleware(func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			logger.Debugf("Request: %+v", request)
			return next(ctx, request)
		}
	})
}
