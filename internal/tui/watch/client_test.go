package watch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// The --token credential rides along as a bearer header; without one no
// Authorization header is sent at all.
func TestFetchHealthBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}))
	defer srv.Close()

	msg := fetchHealth(srv.URL, "operator-key-123")
	h, ok := msg.(healthMsg)
	if !ok {
		t.Fatalf("fetchHealth returned %T: %v", msg, msg)
	}
	if h.Status != "ok" {
		t.Errorf("status = %q, want ok", h.Status)
	}
	if gotAuth != "Bearer operator-key-123" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}

	fetchHealth(srv.URL, "")
	if gotAuth != "" {
		t.Errorf("Authorization = %q without a token, want empty", gotAuth)
	}
}
