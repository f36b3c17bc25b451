package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SagaTypesURI is the resource listing registered saga definitions.
const SagaTypesURI = "sagaflow://saga-types"

// SagaResponse wraps a saga for structured tool output.
type SagaResponse struct {
	Saga *domain.Saga `json:"saga" jsonschema_description:"The saga after the call"`
}

// SagaListResponse wraps a list of sagas.
type SagaListResponse struct {
	Sagas []*domain.Saga `json:"sagas" jsonschema_description:"Live sagas"`
}

// HistoryResponse wraps the transitions of a saga.
type HistoryResponse struct {
	SagaID      string                  `json:"saga_id"`
	Transitions []domain.SagaTransition `json:"transitions" jsonschema_description:"Recorded transitions, oldest first"`
}

// AcceptedResponse acknowledges an event.
type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

// StartArgs are the arguments of start_saga.
type StartArgs struct {
	SagaType      string         `json:"saga_type"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
}

// EventArgs are the arguments of publish_event.
type EventArgs struct {
	Type          string          `json:"type"`
	Domain        string          `json:"domain,omitempty"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// SagaArgs identify one saga.
type SagaArgs struct {
	SagaID string `json:"saga_id"`
}

// Server exposes a ports.Engine as an MCP server.
type Server struct {
	engine    ports.Engine
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(engine ports.Engine, version string) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("sagaflow-mcp", version),
	}
	s.mcpServer.AddTools(s.Tools()...)
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Tools returns the saga tools with their handlers.
func (s *Server) Tools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("start_saga",
				mcp.WithDescription("Start a saga of a registered type."),
				mcp.WithString("saga_type", mcp.Required(), mcp.Description("Registered saga type")),
				mcp.WithString("correlation_id", mcp.Description("Business key routing later events (optional)")),
				mcp.WithObject("params", mcp.Description("Start parameters copied into the saga context")),
				mcp.WithOutputSchema[SagaResponse](),
			),
			Handler: mcp.NewStructuredToolHandler(s.handleStart),
		},
		{
			Tool: mcp.NewTool("publish_event",
				mcp.WithDescription("Feed a domain event to the sagas sharing its correlation id."),
				mcp.WithString("type", mcp.Required(), mcp.Description("Event type, e.g. PaymentCaptured")),
				mcp.WithString("correlation_id", mcp.Required(), mcp.Description("Correlation id of the target sagas")),
				mcp.WithString("domain", mcp.Description("Publishing domain (optional)")),
				mcp.WithObject("payload", mcp.Description("Event payload (optional)")),
				mcp.WithOutputSchema[AcceptedResponse](),
			),
			Handler: mcp.NewStructuredToolHandler(s.handleEvent),
		},
		{
			Tool: mcp.NewTool("get_saga",
				mcp.WithDescription("Get the current state of a saga."),
				mcp.WithString("saga_id", mcp.Required(), mcp.Description("Saga id")),
				mcp.WithOutputSchema[SagaResponse](),
			),
			Handler: mcp.NewStructuredToolHandler(s.handleGet),
		},
		{
			Tool: mcp.NewTool("get_history",
				mcp.WithDescription("Get the recorded transitions of a saga."),
				mcp.WithString("saga_id", mcp.Required(), mcp.Description("Saga id")),
				mcp.WithOutputSchema[HistoryResponse](),
			),
			Handler: mcp.NewStructuredToolHandler(s.handleHistory),
		},
		{
			Tool: mcp.NewTool("list_sagas",
				mcp.WithDescription("List every live saga."),
				mcp.WithOutputSchema[SagaListResponse](),
			),
			Handler: mcp.NewStructuredToolHandler(s.handleList),
		},
	}
}

func (s *Server) handleStart(ctx context.Context, _ mcp.CallToolRequest, args StartArgs) (SagaResponse, error) {
	if args.SagaType == "" {
		return SagaResponse{}, errors.New("saga_type is required")
	}
	saga, err := s.engine.StartSaga(ctx, ports.StartRequest{
		SagaType:      args.SagaType,
		CorrelationID: args.CorrelationID,
		Params:        args.Params,
	})
	if err != nil {
		return SagaResponse{}, fmt.Errorf("start failed: %w", err)
	}
	return SagaResponse{Saga: saga}, nil
}

func (s *Server) handleEvent(ctx context.Context, _ mcp.CallToolRequest, args EventArgs) (AcceptedResponse, error) {
	if args.Type == "" || args.CorrelationID == "" {
		return AcceptedResponse{}, errors.New("type and correlation_id are required")
	}
	err := s.engine.HandleEvent(ctx, domain.DomainEvent{
		Type:          args.Type,
		Domain:        args.Domain,
		CorrelationID: args.CorrelationID,
		Payload:       args.Payload,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("MCP publish_event rejected", "type", args.Type, "err", err)
		return AcceptedResponse{}, fmt.Errorf("event rejected: %w", err)
	}
	return AcceptedResponse{Accepted: true}, nil
}

func (s *Server) handleGet(ctx context.Context, _ mcp.CallToolRequest, args SagaArgs) (SagaResponse, error) {
	saga, err := s.engine.Saga(ctx, args.SagaID)
	if err != nil {
		return SagaResponse{}, err
	}
	return SagaResponse{Saga: saga}, nil
}

func (s *Server) handleHistory(ctx context.Context, _ mcp.CallToolRequest, args SagaArgs) (HistoryResponse, error) {
	history, err := s.engine.History(ctx, args.SagaID)
	if err != nil {
		return HistoryResponse{}, err
	}
	return HistoryResponse{SagaID: args.SagaID, Transitions: history}, nil
}

func (s *Server) handleList(ctx context.Context, _ mcp.CallToolRequest, _ struct{}) (SagaListResponse, error) {
	sagas, err := s.engine.List(ctx)
	if err != nil {
		return SagaListResponse{}, err
	}
	return SagaListResponse{Sagas: sagas}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(SagaTypesURI, "Registered saga types",
		mcp.WithMIMEType("application/json"),
	), s.readSagaTypes)
}

func (s *Server) readSagaTypes(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(s.engine.SagaTypes())
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      SagaTypesURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
