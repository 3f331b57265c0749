// File: internal/server/mcp.go
package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"
)

// toolPrefix namespaces the walkthrough controls among a client's other tools.
const toolPrefix = "walkthrough_"

var toolDescriptions = map[string]string{
	CommandLoad:    "Load a step collection (JSON or YAML) into the walkthrough session. The cursor returns to the beginning.",
	CommandExample: "Load the bundled example step collection.",
	CommandStart:   "Position the cursor on the first step and highlight its target.",
	CommandNext:    "Execute the current step, then move to the next one. Returns the step outcome.",
	CommandPrev:    "Move back one step without executing anything.",
	CommandReset:   "Return the cursor to the beginning and clear the highlight.",
	CommandState:   "Report the current step counter, label and highlight.",
}

// NewMCPServer exposes every control as an MCP tool.
func NewMCPServer(controller *Controller, version string) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("stepwise", version)
	for _, command := range Commands {
		s.AddTool(newTool(command), toolHandler(controller, command))
	}
	return s
}

func newTool(command string) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(toolDescriptions[command])}
	if command == CommandLoad {
		opts = append(opts,
			mcp.WithString("contents", mcp.Required(), mcp.Description("The step collection document")),
			mcp.WithString("format", mcp.Description("json (default) or yaml")),
		)
	}
	return mcp.NewTool(toolPrefix+command, opts...)
}

// toolHandler runs command and returns the result as YAML. Control failures
// are tool errors, not protocol errors.
func toolHandler(controller *Controller, command string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cmd := CommandData{Command: command}
		if command == CommandLoad {
			cmd.Contents = request.GetString("contents", "")
			cmd.Format = request.GetString("format", "")
		}

		result, err := controller.Do(ctx, cmd)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		b, err := yaml.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(b)), nil
	}
}
