package openrouter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if client := NewClient(Config{APIKey: "   "}); client != nil {
		t.Fatal("NewClient() with blank key should return nil")
	}
	if client := NewClient(Config{APIKey: "sk-test"}); client == nil {
		t.Fatal("NewClient() with key should return a client")
	}
}

func TestPingListsModels(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[]}`)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{APIKey: "sk-test", BaseURL: server.URL})
	if err := Ping(client)(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if gotPath != "/models" {
		t.Fatalf("path = %q, want /models", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("authorization = %q", gotAuth)
	}
}

func TestPingSurfacesEndpointError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{APIKey: "sk-bad", BaseURL: server.URL})
	if err := Ping(client)(context.Background()); err == nil {
		t.Fatal("Ping() error = nil, want endpoint error")
	}
}

func TestPingNilClient(t *testing.T) {
	t.Parallel()

	if err := Ping(nil)(context.Background()); err == nil {
		t.Fatal("Ping(nil) error = nil, want error")
	}
}
