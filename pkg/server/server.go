// Package server assembles the MCP Census server: the tool registry and
// the census_question_workflow prompt.
package server

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/mcp-census/pkg/debug"
	"github.com/rhuss/mcp-census/pkg/tools/registry"
)

const (
	Name  = "mcp-census"
	Title = "MCP Census"

	// PromptName is the guided workflow prompt.
	PromptName = "census_question_workflow"
)

// codeInvalidParams is the JSON-RPC invalid params error code.
const codeInvalidParams = -32602

const instructions = "Tools for answering questions with U.S. Census Bureau data. " +
	"Use the " + PromptName + " prompt for a guided workflow: find a dataset with fetch_datasets, " +
	"pick variables and geographies, resolve place names to FIPS codes, then call fetch_dataset_data."

// New creates the MCP server and installs every tool in reg.
func New(reg *registry.Registry, version string) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: Name, Title: Title, Version: version}, &mcp.ServerOptions{
		Instructions: instructions,
	})
	s.AddPrompt(&mcp.Prompt{
		Name:        PromptName,
		Title:       "Census Question Workflow",
		Description: "Guide systematic Census data analysis with step-by-step tool usage.",
		Arguments: []*mcp.PromptArgument{{
			Name:        "question",
			Description: "The user's question about census data",
			Required:    true,
		}},
	}, questionWorkflow)
	reg.Install(s)
	return s
}

func questionWorkflow(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	question := strings.TrimSpace(req.Params.Arguments["question"])
	if question == "" {
		return nil, &jsonrpc.Error{Code: codeInvalidParams, Message: "missing required argument: question"}
	}
	debug.Log("tools", "prompt requested", "prompt", PromptName, "question", debug.Truncate(question, 80))

	return &mcp.GetPromptResult{
		Description: "Census data question workflow",
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: "A user has asked a question about census data:"}},
			{Role: "user", Content: &mcp.TextContent{Text: question}},
			{Role: "assistant", Content: &mcp.TextContent{Text: workflow}},
			{Role: "assistant", Content: &mcp.TextContent{Text: "Let's systematically work through your Census question."}},
		},
	}, nil
}

const workflow = `Follow this systematic workflow to answer Census questions:

🔍 **Step 1: Understand the Question**
   - Identify what data is needed (population, income, housing, etc.)
   - Determine the geographic scope (state, county, tract, etc.)
   - Note the time period of interest

📊 **Step 2: Find Relevant Datasets**
   - Use ` + "`fetch_datasets`" + ` with a descriptive query
   - Include year filter if specific time period needed

🔢 **Step 3: Explore Variables**
   - Use ` + "`fetch_dataset_variables`" + ` to find specific data points
   - Use semantic query to filter thousands of variables

🗺️ **Step 4: Check Geographic Availability**
   - Use ` + "`fetch_dataset_geographies`" + ` to see available levels
   - Use ` + "`fetch_dataset_required_parent_geographies`" + ` if needed

📍 **Step 5: Handle Geographic Names**
   - Use ` + "`lookup_dataset_fips`" + ` to convert place names to FIPS codes
   - Use ` + "`fetch_dataset_fips`" + ` to explore available areas

📈 **Step 6: Retrieve Data**
   - Use ` + "`fetch_dataset_data`" + ` with proper parameters
   - target_geographies: what areas you want data for
   - parent_geographies: required parent constraints

💡 **Need Help?** Use ` + "`fetch_dataset_examples`" + ` for usage patterns`
