package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"initiative-mcp/internal/auth"
	"initiative-mcp/internal/logging"
	"initiative-mcp/internal/services"
	"initiative-mcp/pkg/models"
)

// Version is reported to MCP clients.
var Version = "1.0.0"

// Server exposes the initiative lifecycle as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	manager   *services.LifecycleManager
	sessions  *services.SessionFactory
	logger    *logging.Logger
}

// NewServer creates the MCP server and registers its tools.
func NewServer(manager *services.LifecycleManager, sessions *services.SessionFactory, logger *logging.Logger) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Initiative Workflow",
			Version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
			server.WithInstructions(instructions),
		),
		manager:  manager,
		sessions: sessions,
		logger:   logger,
	}

	s.registerTools()
	return s
}

const instructions = `Tracks initiatives through the prd, ux, architecture, epics_stories and readiness stages.
Configure governance once per project, create an initiative, then call advance_initiative
after each stage artifact has been approved by its required groups.`

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func projectArg() mcp.ToolOption {
	return mcp.WithString("project", mcp.Description("Project directory; defaults to the server's project root"))
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"create_initiative",
			mcp.WithDescription("Create a new initiative at the first workflow stage"),
			mcp.WithString("key", mcp.Required(), mcp.Description("Unique initiative key, e.g. INIT-1")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Human readable title")),
			projectArg(),
		),
		s.handleCreate,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"initiative_status",
			mcp.WithDescription("Show governance status, or the stage of one initiative when key is given"),
			mcp.WithString("key", mcp.Description("Initiative key")),
			projectArg(),
		),
		s.handleStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"advance_initiative",
			mcp.WithDescription("Create the artifact for the current stage and move the initiative to the next stage"),
			mcp.WithString("key", mcp.Required(), mcp.Description("Initiative key")),
			projectArg(),
		),
		s.handleAdvance,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"configure_governance",
			mcp.WithDescription("Record the approvers of each stakeholder group"),
			mcp.WithObject("groups", mcp.Required(),
				mcp.Description(`Map of group to approver identities, e.g. {"ba": ["ana@example.com"]}`)),
			projectArg(),
		),
		s.handleConfigureGovernance,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_stages",
			mcp.WithDescription("List the workflow stages in order with their required approver groups"),
		),
		s.handleListStages,
	)
}

func (s *Server) session(ctx context.Context, request mcp.CallToolRequest) (*services.Session, error) {
	return s.sessions.Open(ctx, request.GetString("project", ""), auth.ActorFromContext(ctx))
}

func (s *Server) handleCreate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := request.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: key"), nil
	}
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: title"), nil
	}
	sess, err := s.session(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to open project: %v", err)), nil
	}

	result, err := s.manager.Create(ctx, sess, key, title)
	if err != nil {
		s.logger.Error("create_initiative failed", "key", key, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create initiative: %v", err)), nil
	}
	return jsonResult(result, result.Outcome), nil
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to open project: %v", err)), nil
	}
	key := request.GetString("key", "")

	report, err := s.manager.Status(ctx, sess, key)
	if err != nil {
		s.logger.Error("initiative_status failed", "key", key, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read status: %v", err)), nil
	}
	return jsonResult(report, report.Outcome), nil
}

func (s *Server) handleAdvance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := request.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: key"), nil
	}
	sess, err := s.session(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to open project: %v", err)), nil
	}

	result, err := s.manager.Advance(ctx, sess, key)
	if err != nil {
		s.logger.Error("advance_initiative failed", "key", key, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to advance initiative: %v", err)), nil
	}
	return jsonResult(result, result.Outcome), nil
}

func (s *Server) handleConfigureGovernance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	groups, err := parseGroups(request.GetArguments()["groups"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid parameter groups: %v", err)), nil
	}
	sess, err := s.session(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to open project: %v", err)), nil
	}

	result, err := s.manager.ConfigureGovernance(ctx, sess, groups)
	if err != nil {
		s.logger.Error("configure_governance failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to configure governance: %v", err)), nil
	}
	return jsonResult(result, result.Outcome), nil
}

func (s *Server) handleListStages(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.manager.Stages(), services.OutcomeOK), nil
}

// jsonResult renders v as the tool's text content. Rejected outcomes are
// flagged as tool errors; not_found stays a normal result.
func jsonResult(v any, outcome services.Outcome) *mcp.CallToolResult {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err))
	}
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = outcome.Rejected()
	return result
}

func parseGroups(raw any) (map[models.Group][]string, error) {
	obj, ok := raw.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil, errors.New("expected a non-empty object")
	}
	groups := make(map[models.Group][]string, len(obj))
	for name, v := range obj {
		switch list := v.(type) {
		case []any:
			for _, item := range list {
				str, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("group %s: approvers must be strings", name)
				}
				groups[models.Group(name)] = append(groups[models.Group(name)], str)
			}
		case string:
			for _, part := range strings.Split(list, ",") {
				groups[models.Group(name)] = append(groups[models.Group(name)], part)
			}
		default:
			return nil, fmt.Errorf("group %s: approvers must be a list of strings", name)
		}
	}
	return groups, nil
}

// MountHTTPHandlers serves mcpServer over SSE under /mcp. The caller identity
// set by the HTTP auth middleware is carried into tool calls.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer,
		server.WithStaticBasePath("/mcp"),
		server.WithSSEContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return auth.WithActor(ctx, auth.ActorFromContext(r.Context()))
		}),
	)

	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}

// ServeStdio serves the tools over stdin/stdout until the client
// disconnects. Every call is attributed to actor.
func (s *Server) ServeStdio(actor string) error {
	return server.ServeStdio(s.mcpServer,
		server.WithErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError)),
		server.WithStdioContextFunc(func(ctx context.Context) context.Context {
			return auth.WithActor(ctx, actor)
		}),
	)
}
