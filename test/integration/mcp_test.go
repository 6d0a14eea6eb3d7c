package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// call invokes a tool and returns its text content and IsError flag.
func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String(), res.IsError
}

func callJSON(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any, out any) {
	t.Helper()
	text, isErr := call(t, cs, name, args)
	if isErr {
		t.Fatalf("%s returned tool error: %s", name, text)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("%s: decoding %q: %v", name, text, err)
	}
}

func TestServerInfoAndTools(t *testing.T) {
	cs := connect(t)

	info := cs.InitializeResult()
	if info == nil || info.ServerInfo.Name != "mcp-census" || info.ServerInfo.Version != "test" {
		t.Fatalf("server info = %+v", info)
	}

	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	want := []string{
		"fetch_datasets",
		"fetch_dataset_geographies",
		"fetch_dataset_variables",
		"fetch_dataset_examples",
		"fetch_dataset_required_parent_geographies",
		"fetch_dataset_fips",
		"lookup_dataset_fips",
		"fetch_dataset_data",
	}
	got := make(map[string]bool, len(res.Tools))
	for _, tool := range res.Tools {
		got[tool.Name] = true
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("tool %s not listed", name)
		}
	}
	if len(res.Tools) != len(want) {
		t.Errorf("got %d tools, want %d", len(res.Tools), len(want))
	}
}

// TestQuestionWorkflow follows the prompt's steps for "What is the median
// household income in Los Angeles County?".
func TestQuestionWorkflow(t *testing.T) {
	cs := connect(t)
	ctx := context.Background()

	prompt, err := cs.GetPrompt(ctx, &mcp.GetPromptParams{
		Name:      "census_question_workflow",
		Arguments: map[string]string{"question": "What is the median household income in Los Angeles County?"},
	})
	if err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	if len(prompt.Messages) != 4 {
		t.Fatalf("got %d prompt messages, want 4", len(prompt.Messages))
	}

	// 1. Find a dataset.
	var found []string
	callJSON(t, cs, "fetch_datasets", map[string]any{"query": "median household income", "year": "2020", "dataset": "acs/acs5"}, &found)
	if len(found) != 1 || !strings.Contains(found[0], "API base URL: http://api.census.gov/data/2020/acs/acs5") {
		t.Fatalf("fetch_datasets = %v", found)
	}

	ds := map[string]any{"year": "2020", "dataset": "acs/acs5"}

	// 2. Pick a variable.
	var vars map[string]map[string]json.RawMessage
	callJSON(t, cs, "fetch_dataset_variables", merge(ds, map[string]any{"query": "median household income", "top_k": 1}), &vars)
	if _, ok := vars["variables"]["B19013_001E"]; !ok || len(vars["variables"]) != 1 {
		t.Fatalf("variables = %v", vars)
	}

	// 3. Check the geography hierarchy.
	var parents []string
	callJSON(t, cs, "fetch_dataset_required_parent_geographies", merge(ds, map[string]any{"geography_name": "county"}), &parents)
	if len(parents) != 1 || parents[0] != "state" {
		t.Fatalf("required parents = %v", parents)
	}

	// 4. Resolve the place name.
	var codes map[string]string
	callJSON(t, cs, "lookup_dataset_fips", merge(ds, map[string]any{
		"name":                        "Los Angeles County, California",
		"geography":                   "county",
		"required_parent_geographies": map[string]string{"state": "06"},
	}), &codes)
	if codes["county"] != "037" || codes["state"] != "06" {
		t.Fatalf("lookup = %v", codes)
	}

	// 5. Fetch the data.
	var table [][]string
	callJSON(t, cs, "fetch_dataset_data", merge(ds, map[string]any{
		"variables":                   []string{"NAME", "B19013_001E"},
		"geographies":                 map[string]string{"county": codes["county"]},
		"required_parent_geographies": map[string]string{"state": codes["state"]},
	}), &table)
	if len(table) != 2 || table[1][1] != "76367" {
		t.Errorf("data = %v", table)
	}
}

func TestFetchDatasetsFilters(t *testing.T) {
	cs := connect(t)

	var all []string
	callJSON(t, cs, "fetch_datasets", map[string]any{"query": "census data", "top_k": 10}, &all)
	if len(all) != 4 {
		t.Errorf("unfiltered search returned %d datasets, want 4", len(all))
	}

	var pl []string
	callJSON(t, cs, "fetch_datasets", map[string]any{"query": "census data", "dataset": "dec/pl"}, &pl)
	if len(pl) != 1 || !strings.Contains(pl[0], "Dataset: dec/pl") {
		t.Errorf("dec/pl search = %v", pl)
	}

	var timeseries []string
	callJSON(t, cs, "fetch_datasets", map[string]any{"query": "economic indicators", "dataset": "timeseries/eits"}, &timeseries)
	if len(timeseries) != 1 || !strings.Contains(timeseries[0], "Vintage: Unknown Vintage") {
		t.Errorf("timeseries search = %v", timeseries)
	}
}

func TestToolErrors(t *testing.T) {
	cs := connect(t)

	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{
			name: "invalid year",
			tool: "fetch_datasets",
			args: map[string]any{"query": "income", "year": "last year"},
			want: "invalid year",
		},
		{
			name: "unknown place",
			tool: "lookup_dataset_fips",
			args: map[string]any{
				"name": "Orange Conty, California", "year": "2020", "dataset": "acs/acs5",
				"geography": "county", "required_parent_geographies": map[string]string{"state": "06"},
			},
			want: "Orange County, California",
		},
		{
			name: "upstream rejection",
			tool: "fetch_dataset_data",
			args: map[string]any{
				"year": "2020", "dataset": "acs/acs5",
				"variables": []string{"NAME"}, "geographies": map[string]string{"tract": "*"},
			},
			want: "400",
		},
		{
			name: "missing metadata",
			tool: "fetch_dataset_geographies",
			args: map[string]any{"year": "1850", "dataset": "acs/acs5"},
			want: "404",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := call(t, cs, tt.tool, tt.args)
			if !isErr {
				t.Fatalf("expected tool error, got %s", text)
			}
			if !strings.Contains(text, tt.want) {
				t.Errorf("error = %q, want to contain %q", text, tt.want)
			}
		})
	}

	// The session survives tool errors.
	if _, err := cs.ListTools(context.Background(), nil); err != nil {
		t.Errorf("ListTools after errors: %v", err)
	}
}

func TestPromptRequiresQuestion(t *testing.T) {
	cs := connect(t)
	_, err := cs.GetPrompt(context.Background(), &mcp.GetPromptParams{
		Name:      "census_question_workflow",
		Arguments: map[string]string{"question": "  "},
	})
	if err == nil {
		t.Error("expected an error for a blank question")
	}
}

func TestSSETransport(t *testing.T) {
	cs := connectWith(t, &mcp.SSEClientTransport{
		Endpoint:   testEnv.BaseURL() + "/sse",
		HTTPClient: &http.Client{Transport: keyTransport{}},
	})
	var found []string
	callJSON(t, cs, "fetch_datasets", map[string]any{"query": "redistricting", "top_k": 2}, &found)
	if len(found) != 2 {
		t.Errorf("got %d datasets over SSE, want 2", len(found))
	}
}

func merge(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
