package fetch_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sridhar-mani/whisper-web-transcriber/pkg/fetch"
)

func TestFetch_ReportsProgressFromContentLength(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	var pcts []int
	got, err := fetch.New().Fetch(context.Background(), srv.URL, fetch.WithProgress(func(pct int) {
		pcts = append(pcts, pct)
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(got), len(payload))
	}
	if len(pcts) == 0 {
		t.Fatal("expected at least one progress callback")
	}
	if last := pcts[len(pcts)-1]; last != 100 {
		t.Errorf("final progress: got %d, want 100", last)
	}
	for i := 1; i < len(pcts); i++ {
		if pcts[i] < pcts[i-1] {
			t.Errorf("progress went backwards: %v", pcts)
			break
		}
	}
}

func TestFetch_SizeHintWhenLengthUnknown(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Flushing before the body forces chunked encoding, so the client
		// sees no Content-Length.
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		w.Write(payload)
	}))
	defer srv.Close()

	var pcts []int
	got, err := fetch.New().Fetch(context.Background(), srv.URL,
		fetch.WithExpectedSize(int64(len(payload))),
		fetch.WithProgress(func(pct int) {
			pcts = append(pcts, pct)
		}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(payload) {
		t.Fatalf("expected %d bytes, got %d", len(payload), len(got))
	}
	if len(pcts) == 0 || pcts[len(pcts)-1] != 100 {
		t.Errorf("expected progress driven by size hint to end at 100, got %v", pcts)
	}
}

func TestFetch_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	if _, err := fetch.New().Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for HTTP 404")
	}
}

func TestFetch_Cancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := fetch.New().Fetch(ctx, srv.URL)
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}
