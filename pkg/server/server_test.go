package server

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/mcp-census/pkg/tools/registry"
	"github.com/rhuss/mcp-census/pkg/tools/toolstest"
)

type pingProvider struct{}

func (pingProvider) Name() string { return "ping" }
func (pingProvider) Close() error { return nil }
func (pingProvider) Tools() []registry.Tool {
	return []registry.Tool{
		registry.NewTool(&mcp.Tool{Name: "ping", Description: "Reply with pong"},
			func(context.Context, struct{}) (any, error) { return "pong", nil }),
	}
}

func connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	reg := registry.New()
	reg.Register(pingProvider{})
	return toolstest.Connect(t, New(reg, "v1.2.3"))
}

func TestServerIdentity(t *testing.T) {
	cs := connect(t)
	res := cs.InitializeResult()
	if res == nil || res.ServerInfo == nil {
		t.Fatal("no initialize result")
	}
	if res.ServerInfo.Name != Name || res.ServerInfo.Title != Title || res.ServerInfo.Version != "v1.2.3" {
		t.Errorf("ServerInfo = %+v", res.ServerInfo)
	}
	if !strings.Contains(res.Instructions, PromptName) {
		t.Errorf("Instructions = %q", res.Instructions)
	}
}

func TestToolsInstalled(t *testing.T) {
	cs := connect(t)
	var out string
	toolstest.CallJSON(t, cs, "ping", map[string]any{}, &out)
	if out != "pong" {
		t.Errorf("ping = %q", out)
	}
}

func TestListPrompts(t *testing.T) {
	cs := connect(t)
	res, err := cs.ListPrompts(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListPrompts: %v", err)
	}
	if len(res.Prompts) != 1 || res.Prompts[0].Name != PromptName {
		t.Fatalf("prompts = %+v", res.Prompts)
	}
	args := res.Prompts[0].Arguments
	if len(args) != 1 || args[0].Name != "question" || !args[0].Required {
		t.Errorf("arguments = %+v", args)
	}
}

func TestQuestionWorkflow(t *testing.T) {
	cs := connect(t)
	res, err := cs.GetPrompt(context.Background(), &mcp.GetPromptParams{
		Name:      PromptName,
		Arguments: map[string]string{"question": "What is the median household income in Alameda County?"},
	})
	if err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	if len(res.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(res.Messages))
	}

	wantRoles := []mcp.Role{"user", "user", "assistant", "assistant"}
	texts := make([]string, len(res.Messages))
	for i, m := range res.Messages {
		if m.Role != wantRoles[i] {
			t.Errorf("message %d role = %q, want %q", i, m.Role, wantRoles[i])
		}
		tc, ok := m.Content.(*mcp.TextContent)
		if !ok {
			t.Fatalf("message %d content is %T", i, m.Content)
		}
		texts[i] = tc.Text
	}

	if texts[0] != "A user has asked a question about census data:" {
		t.Errorf("first message = %q", texts[0])
	}
	if texts[1] != "What is the median household income in Alameda County?" {
		t.Errorf("question message = %q", texts[1])
	}
	for _, tool := range []string{
		"fetch_datasets", "fetch_dataset_variables", "fetch_dataset_geographies",
		"fetch_dataset_required_parent_geographies", "lookup_dataset_fips",
		"fetch_dataset_fips", "fetch_dataset_data", "fetch_dataset_examples",
	} {
		if !strings.Contains(texts[2], "`"+tool+"`") {
			t.Errorf("workflow does not mention %s", tool)
		}
	}
	if texts[3] != "Let's systematically work through your Census question." {
		t.Errorf("last message = %q", texts[3])
	}
}

func TestQuestionWorkflowRequiresQuestion(t *testing.T) {
	cs := connect(t)
	for _, args := range []map[string]string{nil, {"question": "   "}} {
		if _, err := cs.GetPrompt(context.Background(), &mcp.GetPromptParams{Name: PromptName, Arguments: args}); err == nil {
			t.Errorf("GetPrompt(%v) succeeded, want invalid params error", args)
		}
	}
}
