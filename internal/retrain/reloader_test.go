package retrain_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"digitflow/internal/retrain"
)

func TestHTTPReloaderSendsBearerToken(t *testing.T) {
	var gotAuth, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reloader := retrain.NewHTTPReloader(srv.URL+"/reload", "s3cret", time.Second)
	if err := reloader.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if gotMethod != http.MethodPost || gotAuth != "Bearer s3cret" {
		t.Fatalf("unexpected request method=%s auth=%q", gotMethod, gotAuth)
	}
}

func TestHTTPReloaderNon2xxIsReloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model missing", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := retrain.NewHTTPReloader(srv.URL, "", time.Second).Reload(context.Background())
	if !errors.Is(err, retrain.ErrReloadFailure) {
		t.Fatalf("expected ErrReloadFailure, got %v", err)
	}
}

func TestHTTPReloaderUnreachableIsReloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := retrain.NewHTTPReloader(url, "", time.Second).Reload(context.Background())
	if !errors.Is(err, retrain.ErrReloadFailure) {
		t.Fatalf("expected ErrReloadFailure, got %v", err)
	}
}
