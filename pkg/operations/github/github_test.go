package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/credentials"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/operations"
)

func testCatalog(t *testing.T, handler http.Handler) *operations.Catalog {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	catalog := operations.NewCatalog()
	Register(catalog, NewClient(srv.URL))
	return catalog
}

func TestGetRepository(t *testing.T) {
	var gotPath, gotAuth string
	catalog := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"full_name":"octocat/hello"}`))
	}))

	provider := credentials.StaticProvider{Token: "tok"}
	result, opErr := catalog.Invoke(context.Background(), "get_repository",
		map[string]any{"owner": "octocat", "repo": "hello"}, provider)
	if opErr != nil {
		t.Fatalf("Invoke: %v", opErr)
	}

	if gotPath != "/repos/octocat/hello" {
		t.Errorf("path = %q, want /repos/octocat/hello", gotPath)
	}
	if gotAuth != "" {
		t.Errorf("unauthenticated operation sent Authorization %q", gotAuth)
	}
	if string(result) != `{"full_name":"octocat/hello"}` {
		t.Errorf("result = %s", result)
	}
}

func TestGetRepositoryMissingArgs(t *testing.T) {
	catalog := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached upstream despite invalid arguments")
	}))

	_, opErr := catalog.Invoke(context.Background(), "get_repository",
		map[string]any{"owner": "octocat"}, nil)
	if opErr == nil || opErr.Kind != operations.ErrInvalidArguments {
		t.Fatalf("opErr = %v, want invalid_arguments", opErr)
	}
}

func TestListIssuesStateFilter(t *testing.T) {
	var gotQuery string
	catalog := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}))

	_, opErr := catalog.Invoke(context.Background(), "list_issues",
		map[string]any{"owner": "o", "repo": "r", "state": "closed"}, nil)
	if opErr != nil {
		t.Fatalf("Invoke: %v", opErr)
	}
	if gotQuery != "state=closed" {
		t.Errorf("query = %q, want state=closed", gotQuery)
	}
}

func TestCreateIssueRequiresAuth(t *testing.T) {
	catalog := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached upstream without a credential")
	}))

	_, opErr := catalog.Invoke(context.Background(), "create_issue",
		map[string]any{"owner": "o", "repo": "r", "title": "t"}, nil)
	if opErr == nil || opErr.Kind != operations.ErrUnauthorized {
		t.Fatalf("opErr = %v, want unauthorized", opErr)
	}
}

func TestCreateIssue(t *testing.T) {
	var gotMethod, gotAuth string
	var gotBody map[string]any
	catalog := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"number":1}`))
	}))

	provider := credentials.StaticProvider{Token: "tok"}
	result, opErr := catalog.Invoke(context.Background(), "create_issue",
		map[string]any{"owner": "o", "repo": "r", "title": "bug", "body": "details"}, provider)
	if opErr != nil {
		t.Fatalf("Invoke: %v", opErr)
	}

	if gotMethod != "POST" {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", gotAuth)
	}
	if gotBody["title"] != "bug" || gotBody["body"] != "details" {
		t.Errorf("body = %v", gotBody)
	}
	if string(result) != `{"number":1}` {
		t.Errorf("result = %s", result)
	}
}

func TestUpstreamErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   operations.ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, operations.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, operations.ErrUnauthorized},
		{"not found", http.StatusNotFound, operations.ErrUpstream},
		{"server error", http.StatusInternalServerError, operations.ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"message":"upstream says no"}`))
			}))

			_, opErr := catalog.Invoke(context.Background(), "get_repository",
				map[string]any{"owner": "o", "repo": "r"}, nil)
			if opErr == nil || opErr.Kind != tt.want {
				t.Fatalf("opErr = %v, want kind %q", opErr, tt.want)
			}
		})
	}
}

func TestGetFileContentsEscapesPath(t *testing.T) {
	var gotPath string
	catalog := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`{"content":""}`))
	}))

	_, opErr := catalog.Invoke(context.Background(), "get_file_contents",
		map[string]any{"owner": "o", "repo": "r", "path": "docs/read me.md"}, nil)
	if opErr != nil {
		t.Fatalf("Invoke: %v", opErr)
	}
	if gotPath != "/repos/o/r/contents/docs%2Fread%20me.md" {
		t.Errorf("path = %q", gotPath)
	}
}
