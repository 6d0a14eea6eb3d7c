// Command mock-census runs a deterministic stand-in for the Census Data
// API and an Ollama-compatible embedding endpoint, so mcp-census can be
// developed and demoed offline.
//
// Point mcp-census at it with:
//
//	census.base_url:    http://localhost:9090/data
//	census.catalog_url: http://localhost:9090/data.json
//	embedding.url:      http://localhost:9090
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rhuss/mcp-census/pkg/embedding/mock"
)

// mockKey is the only API key the data endpoint accepts.
const mockKey = "mock-census-key"

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	srv := &http.Server{Addr: ":" + port, Handler: newMux()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock census starting", "port", port, "api_key", mockKey)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock census failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock census shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /data.json", handleCatalog)
	mux.HandleFunc("GET /data/{year}/acs/acs5/geography.json", handleMetadata(geographyJSON))
	mux.HandleFunc("GET /data/{year}/acs/acs5/variables.json", handleMetadata(variablesJSON))
	mux.HandleFunc("GET /data/{year}/acs/acs5/examples.json", handleMetadata(examplesJSON))
	mux.HandleFunc("GET /data/{year}/acs/acs5", handleData)
	mux.HandleFunc("POST /api/embed", handleEmbed)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

// --- Catalog and metadata ---

const catalogJSON = `{"dataset":[
 {"identifier":"https://api.census.gov/data/id/ACSDT5Y2021","title":"American Community Survey: 5-Year Estimates: Detailed Tables",
  "description":"Detailed tables of income, poverty, housing and population estimates for states and counties.",
  "c_vintage":2021,"c_dataset":["acs","acs5"],"distribution":[{"accessURL":"http://api.census.gov/data/2021/acs/acs5"}]},
 {"identifier":"https://api.census.gov/data/id/ACSDT5Y2020","title":"American Community Survey: 5-Year Estimates: Detailed Tables",
  "description":"Detailed tables of income, poverty, housing and population estimates for states and counties.",
  "c_vintage":2020,"c_dataset":["acs","acs5"],"distribution":[{"accessURL":"http://api.census.gov/data/2020/acs/acs5"}]},
 {"identifier":"https://api.census.gov/data/id/DECENNIALPL2020","title":"Decennial Census: Redistricting Data (PL 94-171)",
  "description":"Population counts by race and Hispanic origin and housing occupancy status.",
  "c_vintage":2020,"c_dataset":["dec","pl"],"distribution":[{"accessURL":"http://api.census.gov/data/2020/dec/pl"}]},
 {"identifier":"https://api.census.gov/data/id/EITS","title":"Economic Indicators Time Series",
  "description":"Monthly and quarterly economic indicators.","c_dataset":["timeseries","eits"],
  "distribution":[{"accessURL":"http://api.census.gov/data/timeseries/eits"}]}
]}`

const geographyJSON = `{"fips":[
 {"name":"us","geoLevelDisplay":"010"},
 {"name":"state","geoLevelDisplay":"040"},
 {"name":"county","geoLevelDisplay":"050","requires":["state"],"wildcard":["state"],"optionalWithWCFor":"state"}
]}`

const variablesJSON = `{"variables":{
 "NAME":{"label":"Geographic Area Name","concept":"Selectable Geographies","predicateType":"string"},
 "B01003_001E":{"label":"Estimate!!Total","concept":"TOTAL POPULATION","predicateType":"int"},
 "B19013_001E":{"label":"Estimate!!Median household income in the past 12 months","concept":"MEDIAN HOUSEHOLD INCOME","predicateType":"int"},
 "B25001_001E":{"label":"Estimate!!Total","concept":"HOUSING UNITS","predicateType":"int"}
}}`

const examplesJSON = `{"examples":[
 {"url":"https://api.census.gov/data/2020/acs/acs5?get=NAME,B01003_001E&for=state:*"},
 {"url":"https://api.census.gov/data/2020/acs/acs5?get=NAME,B19013_001E&for=county:*&in=state:06"}
]}`

func handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, catalogJSON)
}

func handleMetadata(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !knownYear(r.PathValue("year")) {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, body)
	}
}

func knownYear(year string) bool {
	return year == "2020" || year == "2021"
}

// --- Data ---

type area struct {
	name   string
	state  string
	county string
	values map[string]string
}

var areas = []area{
	{name: "California", state: "06", values: map[string]string{"B01003_001E": "39346023", "B19013_001E": "78672", "B25001_001E": "14328539"}},
	{name: "Texas", state: "48", values: map[string]string{"B01003_001E": "28635442", "B19013_001E": "63826", "B25001_001E": "11447242"}},
	{name: "Los Angeles County, California", state: "06", county: "037", values: map[string]string{"B01003_001E": "10040682", "B19013_001E": "71358", "B25001_001E": "3573432"}},
	{name: "Orange County, California", state: "06", county: "059", values: map[string]string{"B01003_001E": "3175227", "B19013_001E": "94441", "B25001_001E": "1124093"}},
	{name: "Harris County, Texas", state: "48", county: "201", values: map[string]string{"B01003_001E": "4697957", "B19013_001E": "63022", "B25001_001E": "1855624"}},
}

// handleData answers get/for/in queries for the us, state and county
// levels. Unknown combinations get the 400 the real API returns.
func handleData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("key") != mockKey {
		// The real API answers an invalid key with an HTML page.
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>Invalid Key</body></html>"))
		return
	}
	if !knownYear(r.PathValue("year")) {
		http.NotFound(w, r)
		return
	}

	vars := strings.Split(q.Get("get"), ",")
	level, code, ok := strings.Cut(q.Get("for"), ":")
	if !ok || q.Get("get") == "" {
		http.Error(w, "error: missing 'get' or 'for' parameter", http.StatusBadRequest)
		return
	}
	parentState := ""
	if in := q.Get("in"); in != "" {
		name, c, _ := strings.Cut(in, ":")
		if name != "state" {
			http.Error(w, "error: unknown/unsupported geography hierarchy", http.StatusBadRequest)
			return
		}
		parentState = c
	}

	header := append([]string{}, vars...)
	switch level {
	case "us":
		header = append(header, "us")
	case "state":
		header = append(header, "state")
	case "county":
		header = append(header, "state", "county")
	default:
		http.Error(w, "error: unknown/unsupported geography hierarchy", http.StatusBadRequest)
		return
	}

	table := [][]string{header}
	for _, a := range areas {
		if !matchesLevel(a, level, code, parentState) {
			continue
		}
		row := make([]string, 0, len(header))
		for _, v := range vars {
			if v == "NAME" {
				row = append(row, a.name)
				continue
			}
			row = append(row, a.values[v])
		}
		switch level {
		case "state":
			row = append(row, a.state)
		case "county":
			row = append(row, a.state, a.county)
		}
		table = append(table, row)
	}
	if level == "us" {
		table = append(table, usRow(vars))
	}

	if len(table) == 1 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(table)
}

func matchesLevel(a area, level, code, parentState string) bool {
	switch level {
	case "state":
		return a.county == "" && (code == "*" || code == a.state)
	case "county":
		if a.county == "" || (parentState != "" && parentState != "*" && parentState != a.state) {
			return false
		}
		return code == "*" || code == a.county
	}
	return false
}

func usRow(vars []string) []string {
	row := make([]string, 0, len(vars)+1)
	for _, v := range vars {
		if v == "NAME" {
			row = append(row, "United States")
			continue
		}
		row = append(row, "")
	}
	return append(row, "1")
}

// --- Embeddings ---

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// handleEmbed serves the Ollama /api/embed shape with feature-hashed
// vectors of mock.DefaultDims.
func handleEmbed(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request"}`, http.StatusBadRequest)
		return
	}
	resp := embedResponse{Model: req.Model, Embeddings: make([][]float32, len(req.Input))}
	for i, text := range req.Input {
		resp.Embeddings[i] = mock.Vector(text, mock.DefaultDims)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}
