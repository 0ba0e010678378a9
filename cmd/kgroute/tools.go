package kgroute

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/mcp"
	"github.com/spf13/cobra"

	"github.com/soundprediction/kgroute"
	"github.com/soundprediction/kgroute/pkg/server/dto"
	"github.com/soundprediction/kgroute/pkg/server/handlers"
	"github.com/soundprediction/kgroute/pkg/types"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Serve kgroute as MCP tools over stdio",
	Long: `Register kgroute's operations as Genkit tools and serve them to MCP hosts
over stdio (JSON-RPC 2.0, tools/list and tools/call).

Tool results are JSON documents carried as text content.

Tools:
- answer_question: answer a question over the graph
- list_entity_types: list the entity types of the graph`,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)

	addGraphFlags(toolsCmd)
	addModelFlags(toolsCmd)
}

// AnswerToolInput is the input of the answer_question tool.
type AnswerToolInput struct {
	Question       string `json:"question" jsonschema_description:"The question to answer"`
	QueryTime      string `json:"query_time,omitempty" jsonschema_description:"When the question is asked, RFC3339 or YYYY-MM-DD"`
	Routes         int    `json:"routes,omitempty" jsonschema_description:"Maximum number of reasoning routes"`
	IncludeDetails bool   `json:"include_details,omitempty" jsonschema_description:"Include every explored route"`
}

// EntityTypesToolInput is the input of the list_entity_types tool.
type EntityTypesToolInput struct{}

const toolServerName = "kgroute"

// toolbox holds the kgroute operations registered as Genkit tools.
type toolbox struct {
	kg     kgroute.KGRoute
	tools  []ai.Tool
	logger *slog.Logger
}

func newToolbox(g *genkit.Genkit, kg kgroute.KGRoute, logger *slog.Logger) *toolbox {
	t := &toolbox{kg: kg, logger: logger}
	t.tools = []ai.Tool{
		genkit.DefineTool(g, "answer_question",
			"Answer a natural-language question by exploring the knowledge graph along several reasoning routes.",
			t.answerTool),
		genkit.DefineTool(g, "list_entity_types",
			"List the entity types present in the knowledge graph.",
			t.entityTypesTool),
	}
	return t
}

// toolJSON renders a tool result as the JSON text MCP hosts receive.
func toolJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (t *toolbox) answerTool(ctx *ai.ToolContext, input AnswerToolInput) (string, error) {
	req := dto.AnswerRequest{Question: input.Question, Routes: input.Routes}
	if err := req.Validate(); err != nil {
		return "", err
	}
	queryTime, err := parseQueryTime(input.QueryTime)
	if err != nil {
		return "", err
	}
	callCtx := context.WithValue(ctx, types.ContextKeyRequestSource, "tools")
	res, err := t.kg.Answer(callCtx, input.Question, &kgroute.AnswerOptions{QueryTime: queryTime, MaxRoutes: input.Routes})
	if err != nil {
		t.logger.Warn("answer tool failed", "error", err)
		return "", err
	}
	return toolJSON(dto.NewAnswerResponse(res, input.IncludeDetails))
}

func (t *toolbox) entityTypesTool(ctx *ai.ToolContext, _ EntityTypesToolInput) (string, error) {
	entityTypes, err := t.kg.EntityTypes(ctx)
	if err != nil {
		return "", err
	}
	if entityTypes == nil {
		entityTypes = []string{}
	}
	return toolJSON(dto.EntityTypesResponse{EntityTypes: entityTypes})
}

// serveMCP exposes every tool registered on g over stdin and stdout until
// stdin closes or the process is signalled.
func serveMCP(g *genkit.Genkit) error {
	return mcp.NewMCPServer(g, mcp.MCPServerOptions{Name: toolServerName, Version: handlers.Version}).ServeStdio()
}

func runTools(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	_, client, logger, release, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer release()

	g := genkit.Init(ctx)
	tb := newToolbox(g, client, logger)
	logger.Info("Serving MCP tools on stdio", "tools", len(tb.tools))
	return serveMCP(g)
}
