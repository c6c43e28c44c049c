package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewAnalysisMCPServer creates an MCP server with all 4 analysis tools
// registered.
func NewAnalysisMCPServer(svc *AnalysisService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "codelens",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_analysis",
		Description: "Start an analysis of a project directory. Collects source files, runs the analyzer agents through the pipeline and persists normalized findings. Returns immediately with the execution ID.",
	}, svc.StartAnalysis)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_analysis_status",
		Description: "Get the status of an analysis execution: the overall state plus per-stage progress and messages.",
	}, svc.GetAnalysisStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_findings",
		Description: "List the normalized findings of an execution. Optionally filter by severity or main category and cap the number of results.",
	}, svc.ListFindings)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_rules",
		Description: "List the rule definitions the rule analyzer applies, including severity, category and enabled state.",
	}, svc.ListRules)

	return server
}

// RunMCPServer starts an HTTP server exposing the analysis MCP tools.
func RunMCPServer(ctx context.Context, svc *AnalysisService, addr string) error {
	server := NewAnalysisMCPServer(svc)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// RunMCPServerStdio runs the MCP server on stdio transport, blocking until
// stdin is closed or the context is cancelled.
func RunMCPServerStdio(ctx context.Context, svc *AnalysisService) error {
	server := NewAnalysisMCPServer(svc)
	return server.Run(ctx, &mcp.StdioTransport{})
}
