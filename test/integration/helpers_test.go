// Package integration provides end-to-end tests for mcp-census.
//
// Tests run against the real MCP server served over HTTP, backed by a fake
// Census Data API, the deterministic mock embedder and an in-memory
// dataset index, all started in-process using net/http/httptest.
package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/mcp-census/pkg/auth"
	"github.com/rhuss/mcp-census/pkg/auth/apikey"
	"github.com/rhuss/mcp-census/pkg/census"
	"github.com/rhuss/mcp-census/pkg/datasets"
	"github.com/rhuss/mcp-census/pkg/embedding/mock"
	"github.com/rhuss/mcp-census/pkg/index/memory"
	"github.com/rhuss/mcp-census/pkg/server"
	"github.com/rhuss/mcp-census/pkg/tools/builtins/censusapi"
	"github.com/rhuss/mcp-census/pkg/tools/builtins/datasetsearch"
	"github.com/rhuss/mcp-census/pkg/tools/registry"
	transporthttp "github.com/rhuss/mcp-census/pkg/transport/http"
)

const (
	censusKey = "census-test-key"
	clientKey = "client-test-key"
)

// testEnv holds the shared servers for all integration tests.
var testEnv *TestEnvironment

// TestEnvironment holds the MCP server and the fake Census API.
type TestEnvironment struct {
	MCPServer  *httptest.Server
	FakeCensus *httptest.Server
}

// TestMain starts the fake Census API and the MCP server, builds the
// dataset index and runs the tests.
func TestMain(m *testing.M) {
	testEnv = setupTestEnvironment()
	code := m.Run()
	testEnv.Teardown()
	os.Exit(code)
}

func setupTestEnvironment() *TestEnvironment {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := startFakeCensus()

	client := census.New(census.Options{
		BaseURL:    fake.URL + "/data",
		CatalogURL: fake.URL + "/data.json",
		APIKey:     censusKey,
		Timeout:    5 * time.Second,
		CacheSize:  32,
		CacheTTL:   time.Minute,
	})
	embedder := mock.New(mock.DefaultDims)
	idx := memory.New()

	builder := datasets.NewBuilder(client, embedder, idx, datasets.BuilderOptions{Backend: "memory", Logger: logger})
	if err := builder.LoadOrBuild(context.Background()); err != nil {
		panic(fmt.Sprintf("building dataset index: %v", err))
	}

	reg := registry.New()
	reg.Register(censusapi.New(client, embedder))
	reg.Register(datasetsearch.New(&datasets.Searcher{
		Provider: embedder,
		Index:    idx,
		Backend:  "memory",
		Ready:    builder.Ready,
	}))

	authMW := auth.Middleware(
		&auth.Chain{
			Authenticators: []auth.Authenticator{apikey.New([]apikey.Key{{
				Key:      clientKey,
				Identity: auth.Identity{Subject: "integration", ServiceTier: "default"},
			}})},
			Default: auth.No,
		},
		nil, auth.DefaultBypassPaths,
	)
	srv := transporthttp.NewServer(server.New(reg, "test"), transporthttp.Config{
		MetricsPath: "/metrics",
		Ready:       builder.Ready,
		Auth:        authMW,
		Logger:      logger,
	})

	return &TestEnvironment{
		MCPServer:  httptest.NewServer(srv.Handler()),
		FakeCensus: fake,
	}
}

// Teardown stops both servers.
func (env *TestEnvironment) Teardown() {
	if env.MCPServer != nil {
		env.MCPServer.Close()
	}
	if env.FakeCensus != nil {
		env.FakeCensus.Close()
	}
}

// BaseURL returns the MCP server base URL.
func (env *TestEnvironment) BaseURL() string {
	return env.MCPServer.URL
}

// --- MCP helpers ---

// keyTransport adds the client API key to every request.
type keyTransport struct{}

func (keyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set(apikey.HeaderName, clientKey)
	return http.DefaultTransport.RoundTrip(r)
}

// connect opens an MCP session over the streamable HTTP endpoint.
func connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	return connectWith(t, &mcp.StreamableClientTransport{
		Endpoint:   testEnv.BaseURL() + "/mcp",
		HTTPClient: &http.Client{Transport: keyTransport{}},
	})
}

// connectWith connects over tr. The SSE transport holds its event stream
// open on the Connect context, so that context lives until the test ends.
func connectWith(t *testing.T, tr mcp.Transport) *mcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	client := mcp.NewClient(&mcp.Implementation{Name: "integration-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, tr, nil)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

// getURL sends a GET request and returns the status code and body.
func getURL(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return resp.StatusCode, string(body)
}

// --- Fake Census API ---

const catalogJSON = `{"dataset":[
 {"identifier":"https://api.census.gov/data/id/ACSDT5Y2020","title":"American Community Survey: 5-Year Estimates: Detailed Tables",
  "description":"Median household income, poverty and population estimates for counties and states.",
  "c_vintage":2020,"c_dataset":["acs","acs5"],"distribution":[{"accessURL":"http://api.census.gov/data/2020/acs/acs5"}]},
 {"identifier":"https://api.census.gov/data/id/DECENNIALPL2020","title":"Decennial Census: Redistricting Data (PL 94-171)",
  "description":"Race and housing occupancy counts for redistricting.",
  "c_vintage":2020,"c_dataset":["dec","pl"],"distribution":[{"accessURL":"http://api.census.gov/data/2020/dec/pl"}]},
 {"identifier":"https://api.census.gov/data/id/ACSDT5Y2019","title":"American Community Survey: 5-Year Estimates: Detailed Tables",
  "description":"Median household income, poverty and population estimates for counties and states.",
  "c_vintage":2019,"c_dataset":["acs","acs5"],"distribution":[{"accessURL":"http://api.census.gov/data/2019/acs/acs5"}]},
 {"identifier":"https://api.census.gov/data/id/EITS","title":"Economic Indicators","c_dataset":["timeseries","eits"],"distribution":[]}
]}`

const geographyJSON = `{"fips":[
 {"name":"state","geoLevelDisplay":"040"},
 {"name":"county","geoLevelDisplay":"050","requires":["state"],"wildcard":["state"],"optionalWithWCFor":"state"}
]}`

const variablesJSON = `{"variables":{
 "NAME":{"label":"Geographic Area Name","concept":"Selectable Geographies","predicateType":"string"},
 "B01003_001E":{"label":"Estimate!!Total","concept":"TOTAL POPULATION","predicateType":"int"},
 "B19013_001E":{"label":"Estimate!!Median household income in the past 12 months","concept":"MEDIAN HOUSEHOLD INCOME","predicateType":"int"}
}}`

// startFakeCensus serves the catalog, ACS 2020 metadata and a data
// endpoint that requires the API key.
func startFakeCensus() *httptest.Server {
	mux := http.NewServeMux()
	writeJSON := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
		}
	}
	mux.HandleFunc("GET /data.json", writeJSON(catalogJSON))
	mux.HandleFunc("GET /data/2020/acs/acs5/geography.json", writeJSON(geographyJSON))
	mux.HandleFunc("GET /data/2020/acs/acs5/variables.json", writeJSON(variablesJSON))
	mux.HandleFunc("GET /data/2020/acs/acs5/examples.json", writeJSON(`{"examples":[]}`))
	mux.HandleFunc("GET /data/2020/acs/acs5", handleFakeData)
	return httptest.NewServer(mux)
}

func handleFakeData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("key") != censusKey {
		http.Error(w, "Invalid Key", http.StatusBadRequest)
		return
	}
	if q.Get("for") == "county:*" && q.Get("in") == "state:06" && q.Get("get") == "NAME" {
		w.Write([]byte(`[["NAME","state","county"],` +
			`["Los Angeles County, California","06","037"],` +
			`["Orange County, California","06","059"]]`))
		return
	}
	if q.Get("for") == "county:037" && q.Get("in") == "state:06" {
		w.Write([]byte(`[["NAME","B19013_001E","state","county"],["Los Angeles County, California","76367","06","037"]]`))
		return
	}
	http.Error(w, "error: unknown/unsupported geography hierarchy", http.StatusBadRequest)
}
