package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// apiServer answers "METHOD /path" routes with canned JSON and records requests
type apiServer struct {
	mu       sync.Mutex
	server   *httptest.Server
	routes   map[string]apiRoute
	requests []string
	bodies   map[string]string
}

type apiRoute struct {
	status int
	body   string
}

func newAPIServer(t *testing.T) *apiServer {
	t.Helper()
	a := &apiServer{
		routes: make(map[string]apiRoute),
		bodies: make(map[string]string),
	}
	a.server = httptest.NewServer(http.HandlerFunc(a.handle))
	t.Cleanup(a.server.Close)
	return a
}

func (a *apiServer) on(method, path string, status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[method+" "+path] = apiRoute{status: status, body: body}
}

func (a *apiServer) handle(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	a.requests = append(a.requests, r.Method+" "+target)
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		a.bodies[r.Method+" "+r.URL.Path] = string(raw)
	}

	w.Header().Set("Content-Type", "application/json")
	route, ok := a.routes[r.Method+" "+r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"Not Found"}`)
		return
	}
	w.WriteHeader(route.status)
	_, _ = io.WriteString(w, route.body)
}

// writes returns every non-GET request in order
func (a *apiServer) writes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var writes []string
	for _, req := range a.requests {
		if !strings.HasPrefix(req, http.MethodGet+" ") {
			writes = append(writes, req)
		}
	}
	return writes
}

func (a *apiServer) recorded() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.requests...)
}

func (a *apiServer) body(method, path string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bodies[method+" "+path]
}

// resetFlags restores every flag of cmd and its children to its default, since
// the commands and their flag variables are package level
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

// runCommand executes the root command with args in an isolated environment
func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GITHUB_API_TOKEN", "")

	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}
