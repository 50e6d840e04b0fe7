package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tink3rlabs/targeting/health"
	"github.com/tink3rlabs/targeting/storage"
	"github.com/tink3rlabs/targeting/targeting"
	"github.com/tink3rlabs/targeting/telemetry"
	"github.com/tink3rlabs/targeting/types"
)

type response struct {
	Data    []map[string]any `json:"data"`
	Meta    types.Meta       `json:"meta"`
	Error   string           `json:"error"`
	Details []string         `json:"details"`
}

func newTestServer(t *testing.T, writeRole string) *httptest.Server {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace("handlers_" + t.Name())
	m, err := storage.NewMemoryAdapter(name)
	if err != nil {
		t.Fatalf("NewMemoryAdapter() error = %v", err)
	}
	t.Cleanup(func() {
		if db, err := m.DB.DB(); err == nil {
			db.Close()
		}
	})
	if err := storage.NewDatabaseMigration(m).Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	tel := telemetry.New(noop.NewTracerProvider())
	server := httptest.NewServer(NewRouter(Options{
		Service:   targeting.NewService(m, nil, "", tel),
		Health:    health.NewHealthChecker(m),
		Telemetry: tel,
		WriteRole: writeRole,
	}))
	t.Cleanup(server.Close)
	return server
}

func do(t *testing.T, method string, url string, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return resp.StatusCode, data
}

func decodeResponse(t *testing.T, data []byte) response {
	t.Helper()
	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("response %s is not JSON: %v", data, err)
	}
	return r
}

func seed(t *testing.T, server *httptest.Server) {
	t.Helper()
	profiles := []string{
		`{"id": "p1", "name": "Alice", "email": "alice@example.com", "features": [{"name": "tier", "str_value": "gold"}, {"name": "age", "num_value": 30}]}`,
		`{"id": "p2", "name": "Bob", "features": [{"name": "tier", "str_value": "silver"}, {"name": "age", "num_value": 20}]}`,
		`{"id": "p3", "name": "Carol"}`,
	}
	for _, p := range profiles {
		if status, body := do(t, http.MethodPost, server.URL+"/profiles", p); status != http.StatusCreated {
			t.Fatalf("POST /profiles = %d %s", status, body)
		}
	}
}

func query(q string) string {
	return url.Values{"q": {q}}.Encode()
}

func TestProfiles(t *testing.T) {
	server := newTestServer(t, "")
	seed(t, server)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantIDs    []string
		wantCount  *int64
		wantMatch  *bool
		wantNext   bool
	}{
		{name: "list all", path: "/profiles", wantStatus: http.StatusOK, wantIDs: []string{"p1", "p2", "p3"}},
		{name: "list targeted", path: "/profiles?" + query(`tier[value="gold"] || age[value<25]`), wantStatus: http.StatusOK, wantIDs: []string{"p1", "p2"}},
		{name: "list first page", path: "/profiles?limit=2", wantStatus: http.StatusOK, wantIDs: []string{"p1", "p2"}, wantNext: true},
		{name: "search", path: "/profiles?search=name:Bob", wantStatus: http.StatusOK, wantIDs: []string{"p2"}},
		{name: "q and search", path: "/profiles?search=name:Bob&" + query(`tier[value="gold"]`), wantStatus: http.StatusBadRequest},
		{name: "invalid limit", path: "/profiles?limit=zero", wantStatus: http.StatusBadRequest},
		{name: "count", path: "/profiles/count?" + query(`tier![value="gold"]`), wantStatus: http.StatusOK, wantCount: ptr(int64(2))},
		{name: "count without query", path: "/profiles/count", wantStatus: http.StatusBadRequest},
		{name: "match", path: "/profiles/p1/match?" + query(`age[value>=30]`), wantStatus: http.StatusOK, wantMatch: ptr(true)},
		{name: "no match", path: "/profiles/p2/match?" + query(`age[value>=30]`), wantStatus: http.StatusOK, wantMatch: ptr(false)},
		{name: "match unknown profile", path: "/profiles/nope/match?" + query(`age[value>=30]`), wantStatus: http.StatusNotFound},
		{name: "unknown profile", path: "/profiles/nope", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, http.MethodGet, server.URL+tt.path, "")
			if status != tt.wantStatus {
				t.Fatalf("GET %s = %d %s, want %d", tt.path, status, body, tt.wantStatus)
			}
			if status != http.StatusOK {
				return
			}
			got := decodeResponse(t, body)
			if tt.wantIDs != nil {
				ids := []string{}
				for _, p := range got.Data {
					ids = append(ids, p["id"].(string))
				}
				if !reflect.DeepEqual(ids, tt.wantIDs) {
					t.Errorf("GET %s ids = %v, want %v", tt.path, ids, tt.wantIDs)
				}
			}
			if (got.Meta.Next != "") != tt.wantNext {
				t.Errorf("GET %s next = %q, wantNext %v", tt.path, got.Meta.Next, tt.wantNext)
			}
			if !reflect.DeepEqual(got.Meta.Count, tt.wantCount) || !reflect.DeepEqual(got.Meta.Match, tt.wantMatch) {
				t.Errorf("GET %s meta = %+v", tt.path, got.Meta)
			}
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestProfiles_SyntaxError(t *testing.T) {
	server := newTestServer(t, "")
	status, body := do(t, http.MethodGet, server.URL+"/profiles/count?"+query("tier["), "")
	if status != http.StatusBadRequest {
		t.Fatalf("GET /profiles/count = %d %s", status, body)
	}
	got := decodeResponse(t, body)
	want := []string{"offset: 5", "line: 1", "column: 6"}
	if !reflect.DeepEqual(got.Details, want) {
		t.Errorf("details = %v, want %v", got.Details, want)
	}
}

func TestProfiles_Create(t *testing.T) {
	server := newTestServer(t, "")
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "generated id", body: `{"name": "Dan", "features": [{"name": "vip", "bool_value": true}]}`, wantStatus: http.StatusCreated},
		{name: "explicit id", body: `{"id": "d1", "name": "Dan"}`, wantStatus: http.StatusCreated},
		{name: "duplicate id", body: `{"id": "d1", "name": "Dan"}`, wantStatus: http.StatusConflict},
		{name: "missing name", body: `{"id": "d2"}`, wantStatus: http.StatusBadRequest},
		{name: "invalid feature name", body: `{"name": "Dan", "features": [{"name": "has space"}]}`, wantStatus: http.StatusBadRequest},
		{name: "latitude out of range", body: `{"name": "Dan", "features": [{"name": "home", "lng": 2, "lat": 95}]}`, wantStatus: http.StatusBadRequest},
		{name: "not JSON", body: `{`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, http.MethodPost, server.URL+"/profiles", tt.body)
			if status != tt.wantStatus {
				t.Errorf("POST /profiles = %d %s, want %d", status, body, tt.wantStatus)
			}
		})
	}
}

func TestGrammar(t *testing.T) {
	server := newTestServer(t, "")

	status, body := do(t, http.MethodPost, server.URL+"/grammar/parse", `{"query": "tier[value='gold'] && age[value>=18]"}`)
	if status != http.StatusOK {
		t.Fatalf("POST /grammar/parse = %d %s", status, body)
	}
	var tree map[string]any
	if err := json.Unmarshal(body, &tree); err != nil {
		t.Fatalf("tree is not JSON: %v", err)
	}
	if children, ok := tree["$and"].([]any); !ok || len(children) != 2 {
		t.Errorf("POST /grammar/parse = %s, want an $and of two features", body)
	}

	status, generated := do(t, http.MethodPost, server.URL+"/grammar/generate", string(body))
	if status != http.StatusOK {
		t.Fatalf("POST /grammar/generate = %d %s", status, generated)
	}
	var got struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(generated, &got); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if got.Query != `tier [value = "gold"] && age [value >= 18]` {
		t.Errorf("POST /grammar/generate query = %q", got.Query)
	}

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "unknown start rule", path: "/grammar/parse", body: `{"query": "a[value=1]", "startRule": "unknown"}`},
		{name: "request rule rejects logicals", path: "/grammar/parse", body: `{"query": "a[value=1] || b[value=2]", "startRule": "request"}`},
		{name: "structural error", path: "/grammar/generate", body: `{"name": "f1"}`},
		{name: "invalid JSON tree", path: "/grammar/generate", body: `[`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, body := do(t, http.MethodPost, server.URL+tt.path, tt.body); status != http.StatusBadRequest {
				t.Errorf("POST %s = %d %s, want 400", tt.path, status, body)
			}
		})
	}
}

func TestSegments(t *testing.T) {
	server := newTestServer(t, "")
	seed(t, server)

	status, body := do(t, http.MethodPost, server.URL+"/segments", `{"name": "gold", "query": "tier[value='gold']"}`)
	if status != http.StatusCreated {
		t.Fatalf("POST /segments = %d %s", status, body)
	}
	var segment storage.Segment
	if err := json.Unmarshal(body, &segment); err != nil {
		t.Fatalf("segment is not JSON: %v", err)
	}
	if segment.Query != `tier [value = "gold"]` {
		t.Errorf("segment query = %q, want canonical text", segment.Query)
	}

	status, body = do(t, http.MethodGet, server.URL+"/segments/"+segment.ID+"/count", "")
	if status != http.StatusOK {
		t.Fatalf("GET /segments/{id}/count = %d %s", status, body)
	}
	if got := decodeResponse(t, body); got.Meta.Count == nil || *got.Meta.Count != 1 {
		t.Errorf("segment count = %+v, want 1", got.Meta)
	}

	if status, body = do(t, http.MethodGet, server.URL+"/segments", ""); status != http.StatusOK || len(decodeResponse(t, body).Data) != 1 {
		t.Errorf("GET /segments = %d %s", status, body)
	}
	if status, _ = do(t, http.MethodGet, server.URL+"/segments/"+segment.ID, ""); status != http.StatusOK {
		t.Errorf("GET /segments/{id} = %d", status)
	}
	if status, _ = do(t, http.MethodGet, server.URL+"/segments/missing", ""); status != http.StatusNotFound {
		t.Errorf("GET /segments/missing = %d, want 404", status)
	}
	if status, _ = do(t, http.MethodPost, server.URL+"/segments", `{"name": "broken", "query": "tier["}`); status != http.StatusBadRequest {
		t.Errorf("POST /segments with invalid query = %d, want 400", status)
	}
}

func TestWriteRole(t *testing.T) {
	server := newTestServer(t, "editor")

	if status, body := do(t, http.MethodPost, server.URL+"/segments", `{"name": "gold", "query": "tier[value='gold']"}`); status != http.StatusUnauthorized {
		t.Errorf("POST /segments without claims = %d %s, want 401", status, body)
	}
	if status, body := do(t, http.MethodGet, server.URL+"/segments", ""); status != http.StatusOK {
		t.Errorf("GET /segments = %d %s, reads need no role", status, body)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	server := newTestServer(t, "")
	do(t, http.MethodGet, server.URL+"/profiles/count?"+query(`tier[value="gold"]`), "")

	tests := []struct {
		name     string
		path     string
		contains string
	}{
		{name: "health", path: "/health", contains: `"ok"`},
		{name: "metrics", path: "/metrics", contains: `targeting_operations_total{operation="count",outcome="success"} 1`},
		{name: "openapi", path: "/openapi.json", contains: `"/profiles/{id}/match"`},
		{name: "openapi components", path: "/openapi.json", contains: `"TargetingQuery"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, http.MethodGet, server.URL+tt.path, "")
			if status != http.StatusOK {
				t.Fatalf("GET %s = %d", tt.path, status)
			}
			if !strings.Contains(string(body), tt.contains) {
				t.Errorf("GET %s does not contain %s", tt.path, tt.contains)
			}
		})
	}
}
