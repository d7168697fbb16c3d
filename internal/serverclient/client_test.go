package serverclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
)

func clientFor(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	c := New(u.Hostname())
	c.SetPort(port)
	return c
}

func TestClient_NoPortFailsFast(t *testing.T) {
	c := New("127.0.0.1")
	if _, err := c.FetchConfig(context.Background()); !errors.Is(err, ErrNoPort) {
		t.Errorf("err = %v, want ErrNoPort", err)
	}
	if _, err := c.Download(context.Background(), DownloadRequest{URL: "https://example.com/v"}); !errors.Is(err, ErrNoPort) {
		t.Errorf("err = %v, want ErrNoPort", err)
	}
}

func TestClient_FetchConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/config" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"download_dir":"/tmp/videos","debug_mode":true}`))
	}))
	defer srv.Close()

	c := clientFor(t, srv)
	cfg, err := c.FetchConfig(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cfg["download_dir"] != "/tmp/videos" {
		t.Errorf("config = %v", cfg)
	}
}

func TestClient_SaveConfig(t *testing.T) {
	var received ServerConfig
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/config" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := clientFor(t, srv)
	if err := c.SaveConfig(context.Background(), ServerConfig{"debug_mode": false}); err != nil {
		t.Fatal(err)
	}
	if received["debug_mode"] != false {
		t.Errorf("server received %v", received)
	}
}

func TestClient_DownloadAssignsID(t *testing.T) {
	var got DownloadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/download" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(DownloadResponse{Status: "queued", DownloadID: got.ID})
	}))
	defer srv.Close()

	c := clientFor(t, srv)
	resp, err := c.Download(context.Background(), DownloadRequest{URL: "https://example.com/watch?v=1"})
	if err != nil {
		t.Fatal(err)
	}
	if got.ID == "" {
		t.Error("download relayed without an id")
	}
	if resp.DownloadID != got.ID {
		t.Errorf("response id = %q, want %q", resp.DownloadID, got.ID)
	}
	if resp.Status != "queued" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestClient_DownloadKeepsCallerID(t *testing.T) {
	var got DownloadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(DownloadResponse{Status: "queued"})
	}))
	defer srv.Close()

	c := clientFor(t, srv)
	resp, err := c.Download(context.Background(), DownloadRequest{ID: "retry-1", URL: "https://example.com/v"})
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "retry-1" {
		t.Errorf("relayed id = %q, want retry-1", got.ID)
	}
	if resp.DownloadID != "retry-1" {
		t.Errorf("response id = %q, want retry-1", resp.DownloadID)
	}
}

func TestClient_History(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/history" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("page") != "2" || r.URL.Query().Get("per_page") != "10" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"history":[{"downloadId":"a","url":"u","status":"done"}],"total_items":11}`))
	}))
	defer srv.Close()

	c := clientFor(t, srv)
	hp, err := c.History(context.Background(), 2, 10)
	if err != nil {
		t.Fatal(err)
	}
	if hp.Total != 11 || len(hp.Entries) != 1 || hp.Entries[0].Status != "done" {
		t.Errorf("history = %+v", hp)
	}
}

func TestClient_ServerErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "yt-dlp exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := clientFor(t, srv)
	_, err := c.FetchConfig(context.Background())
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}
