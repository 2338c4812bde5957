package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"digitflow/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("disk full")
	err := services.Wrap(services.ErrArtifactWrite, "RETRAINING", "save", "rename failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrArtifactWrite) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"RETRAINING", "save", "rename failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindClassifiesTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrStoreUnavailable, "", "open", "", nil), "store_unavailable"},
		{fmt.Errorf("decode: %w", services.ErrImageDecode), "image_decode"},
		{services.Wrap(services.ErrTrainingFailure, "RETRAINING", "fit", "", errors.New("nan")), "training_failure"},
		{services.Wrap(services.ErrArtifactWrite, "RETRAINING", "save", "", nil), "artifact_write_failure"},
		{services.Wrap(services.ErrReloadFailure, "RELOADING", "post", "", nil), "reload_failure"},
		{services.Wrap(services.ErrReloadFailure, "RELOADING", "load", "",
			services.Wrap(services.ErrTrainingFailure, "", "bootstrap", "", nil)), "reload_failure"},
		{services.Wrap(services.ErrReloadFailure, "RELOADING", "load", "",
			fmt.Errorf("read artifact: %w", services.ErrArtifactWrite)), "reload_failure"},
		{services.Wrap(services.ErrStoreUnavailable, "MARKING", "mark processed", "", errors.New("locked")), "store_unavailable"},
		{errors.New("mystery"), "unknown"},
	}
	for _, tc := range cases {
		if got := services.Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
