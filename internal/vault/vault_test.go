package vault

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

const testToken = "test-token" //nolint:gosec // test constant

// fakeVault is an in-memory stand-in for the Obsidian Local REST API.
type fakeVault struct {
	mu    sync.Mutex
	files map[string]string
	dirs  map[string]bool // paths the remote considers directories

	// Search behavior.
	searchStatus    int // non-zero forces this status on /search/simple/
	searchResults   []SearchResult
	advancedStatus  int // non-zero forces this status on /search/
	advancedResults []AdvancedResult

	// Patch behavior.
	badTarget string // Target header value the remote cannot resolve

	// Captured request details.
	lastAccept      string
	lastContentType string
	lastIfNoneMatch string
	lastOperation   string
	lastTargetType  string
	lastTarget      string
	lastBody        string
}

func newFakeVault() *fakeVault {
	return &fakeVault{
		files: map[string]string{},
		dirs:  map[string]bool{},
	}
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/" && r.Method == http.MethodGet:
		fmt.Fprint(w, `{"versions":{"obsidian":"1.6.7","self":"3.1.0"}}`)
	case r.URL.Path == "/search/simple/" && r.Method == http.MethodPost:
		if f.searchStatus != 0 {
			w.WriteHeader(f.searchStatus)
			return
		}
		writeJSON(w, f.searchResults)
	case r.URL.Path == "/search/" && r.Method == http.MethodPost:
		f.lastContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		f.lastBody = string(body)
		if f.advancedStatus != 0 {
			w.WriteHeader(f.advancedStatus)
			return
		}
		writeJSON(w, f.advancedResults)
	case strings.HasPrefix(r.URL.Path, "/vault/"):
		f.handleVault(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeVault) handleVault(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/vault/")

	// Directory listing.
	if name == "" || strings.HasSuffix(name, "/") {
		dir := strings.Trim(name, "/")
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if dir != "" && !f.dirExists(dir) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"files": f.list(dir)})
		return
	}

	switch r.Method {
	case http.MethodGet:
		f.lastAccept = r.Header.Get("Accept")
		content, ok := f.files[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, content)
	case http.MethodPut:
		f.lastIfNoneMatch = r.Header.Get("If-None-Match")
		if f.lastIfNoneMatch == "*" {
			if _, exists := f.files[name]; exists {
				w.WriteHeader(http.StatusConflict)
				return
			}
		}
		body, _ := io.ReadAll(r.Body)
		f.files[name] = string(body)
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		f.lastBody = string(body)
		f.files[name] += string(body)
	case http.MethodPatch:
		if _, ok := f.files[name]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.lastOperation = r.Header.Get("Operation")
		f.lastTargetType = r.Header.Get("Target-Type")
		f.lastTarget = r.Header.Get("Target")
		if f.badTarget != "" && f.lastTarget == f.badTarget {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "unable to resolve target: %s", f.lastTarget)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.files[name] += string(body)
	case http.MethodDelete:
		if f.dirs[name] {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if _, ok := f.files[name]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.files, name)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// dirExists reports whether any file lives under dir.
func (f *fakeVault) dirExists(dir string) bool {
	if f.dirs[dir] {
		return true
	}
	prefix := dir + "/"
	for p := range f.files {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// list returns the direct children of dir in the remote's listing format:
// bare names, directories with a trailing slash.
func (f *fakeVault) list(dir string) []string {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	seen := map[string]bool{}
	for p := range f.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			seen[rest[:i+1]] = true
		} else {
			seen[rest] = true
		}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// newTestClient starts a fake remote and returns it with a client wired to it.
func newTestClient(t *testing.T) (*fakeVault, *Client) {
	t.Helper()

	fake := newFakeVault()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, testToken,
		WithLogger(slog.New(slog.DiscardHandler)))
	return fake, client
}
