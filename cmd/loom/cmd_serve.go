package main

import (
	"context"

	"github.com/spf13/cobra"

	"loom/internal/logging"
	mcpserver "loom/internal/mcp"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout. Agent hosts connect via their
MCP configuration and drive instances through typed tools: create_instance,
start_task, complete_task, skip_task, refresh, instance_status,
list_definitions.

The server monitors for parent process death. When the client disconnects
or restarts, the server self-terminates to prevent zombie processes.`,
	RunE: runServe,
}

func init() {
	addEngineFlags(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	srv := mcpserver.NewServer(eng)
	defer srv.Shutdown()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mcpserver.WatchStdin(ctx, cancel)

	logging.New("mcp").Info("starting loom MCP server over stdio (parent watchdog active)")
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
