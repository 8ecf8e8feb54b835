package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok body"))
	}))
	defer server.Close()

	session := NewSession(5*time.Second, 1)
	body, err := session.Get(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if body != "ok body" {
		t.Errorf("body = %q, want %q", body, "ok body")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d calls, want 2", got)
	}
}

func TestGetExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	session := NewSession(5*time.Second, 1)
	_, err := session.Get(context.Background(), server.URL, "")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "unexpected status 500") {
		t.Errorf("unexpected error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d calls, want 2 (initial + 1 retry)", got)
	}
}

func TestSessionKeepsCookies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/set":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
			w.Write([]byte("set"))
		case "/check":
			c, err := r.Cookie("session")
			if err != nil || c.Value != "abc" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Write([]byte("cookie held"))
		}
	}))
	defer server.Close()

	session := NewSession(5*time.Second, 0)
	ctx := context.Background()
	if _, err := session.Get(ctx, server.URL+"/set", ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	body, err := session.Get(ctx, server.URL+"/check", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if body != "cookie held" {
		t.Errorf("body = %q", body)
	}

	// A fresh session must not see the first session's cookies.
	other := NewSession(5*time.Second, 0)
	if _, err := other.Get(ctx, server.URL+"/check", ""); err == nil {
		t.Error("expected fresh session to be rejected")
	}
}

func TestPostFormEncodesBody(t *testing.T) {
	var gotForm url.Values
	var gotContentType, gotReferer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotForm = r.PostForm
		gotContentType = r.Header.Get("Content-Type")
		gotReferer = r.Header.Get("Referer")
		w.Write([]byte("posted"))
	}))
	defer server.Close()

	session := NewSession(5*time.Second, 0)
	form := url.Values{"op": {"download2"}, "id": {"abc 123"}}
	body, err := session.PostForm(context.Background(), server.URL, form, "https://ref.example.com/page")
	if err != nil {
		t.Fatalf("PostForm() error: %v", err)
	}
	if body != "posted" {
		t.Errorf("body = %q", body)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("content type = %q", gotContentType)
	}
	if gotReferer != "https://ref.example.com/page" {
		t.Errorf("referer = %q", gotReferer)
	}
	if gotForm.Get("op") != "download2" || gotForm.Get("id") != "abc 123" {
		t.Errorf("form = %v", gotForm)
	}
}

func TestStreamRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	session := NewSession(5*time.Second, 0)
	if _, err := session.Stream(context.Background(), server.URL); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestGetCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	session := NewSession(5*time.Second, 5)
	start := time.Now()
	if _, err := session.Get(ctx, server.URL, ""); err == nil {
		t.Fatal("expected error with cancelled context")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancelled call took %v, retries not aborted", elapsed)
	}
}

func TestStreamBodyOutlivesTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f := w.(http.Flusher)
		for i := 0; i < 6; i++ {
			w.Write([]byte("chunk of archive data "))
			f.Flush()
			time.Sleep(100 * time.Millisecond)
		}
	}))
	defer server.Close()

	// Total transfer time well beyond the session timeout; bytes keep
	// flowing, so the read must not be cut off mid-stream.
	session := NewSession(200*time.Millisecond, 0)
	resp, err := session.Stream(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading slow body: %v", err)
	}
	if len(data) != 6*len("chunk of archive data ") {
		t.Errorf("read %d bytes, want %d", len(data), 6*len("chunk of archive data "))
	}
}

func TestStreamHeaderTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
		w.Write([]byte("too late"))
	}))
	defer server.Close()

	session := NewSession(100*time.Millisecond, 0)
	resp, err := session.Stream(context.Background(), server.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected error when headers never arrive in time")
	}
}

func TestStreamSharesCookiesWithPageFetches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			http.SetCookie(w, &http.Cookie{Name: "gate", Value: "open"})
			w.Write([]byte("page"))
		case "/file":
			if c, err := r.Cookie("gate"); err != nil || c.Value != "open" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Write([]byte("payload"))
		}
	}))
	defer server.Close()

	session := NewSession(5*time.Second, 0)
	ctx := context.Background()
	if _, err := session.Get(ctx, server.URL+"/page", ""); err != nil {
		t.Fatalf("page fetch: %v", err)
	}
	resp, err := session.Stream(ctx, server.URL+"/file")
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "payload" {
		t.Errorf("body = %q, want %q", data, "payload")
	}
}
