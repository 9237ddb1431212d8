package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/marmos91/dittomds/pkg/mds"
	"github.com/marmos91/dittomds/pkg/namespace"
)

func TestServer_Lifecycle(t *testing.T) {
	authority := mds.New(mds.DefaultConfig(), namespace.New(namespace.Config{}))
	server := NewServer("authority", APIConfig{}, NewRouter(Dependencies{Authority: authority}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx, ln)
	}()

	resp, err := http.Get(fmt.Sprintf("http://%s/health", ln.Addr()))
	if err != nil {
		cancel()
		t.Fatalf("Failed to make request: %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", ct)
	}

	cancel()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Server returned error on shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shut down in time")
	}

	// Stop after shutdown is a no-op.
	if err := server.Stop(context.Background()); err != nil {
		t.Errorf("Second stop returned error: %v", err)
	}
}

func TestServer_DefaultsApplied(t *testing.T) {
	server := NewServer("test", APIConfig{}, http.NotFoundHandler())

	if server.Port() != DefaultPort {
		t.Errorf("Expected default port %d, got %d", DefaultPort, server.Port())
	}
	if server.server.WriteTimeout == 0 {
		t.Error("Expected a default write timeout")
	}
}
