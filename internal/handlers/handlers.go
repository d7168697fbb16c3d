// Package handlers provides the agent's own loopback HTTP surface:
// status, rescan, config proxy, download relay, and the event stream.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/grabwire/grabwire/internal/config"
	"github.com/grabwire/grabwire/internal/events"
	"github.com/grabwire/grabwire/internal/pagewatch"
	"github.com/grabwire/grabwire/internal/reconnect"
	"github.com/grabwire/grabwire/internal/serverclient"
	"github.com/grabwire/grabwire/internal/web"
)

// VideoSource lists detected videos; nil when page watching is disabled.
type VideoSource interface {
	Videos() []pagewatch.Video
}

type Handlers struct {
	Config     *config.RuntimeConfig
	Controller *reconnect.Controller
	Client     *serverclient.Client
	Hub        *events.Hub
	Videos     VideoSource
}

func New(cfg *config.RuntimeConfig, ctrl *reconnect.Controller, client *serverclient.Client, hub *events.Hub, videos VideoSource) *Handlers {
	return &Handlers{
		Config:     cfg,
		Controller: ctrl,
		Client:     client,
		Hub:        hub,
		Videos:     videos,
	}
}

func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /status", h.HandleStatus)
	mux.HandleFunc("POST /rescan", h.HandleRescan)
	mux.HandleFunc("GET /events", h.HandleEvents)
	mux.HandleFunc("GET /config", h.HandleGetConfig)
	mux.HandleFunc("POST /config", h.HandleSaveConfig)
	mux.HandleFunc("POST /download", h.HandleDownload)
	mux.HandleFunc("GET /videos", h.HandleVideos)
	mux.HandleFunc("GET /history", h.HandleHistory)
	mux.HandleFunc("GET /metrics", h.HandleMetrics)
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.Controller.State()
	web.JSON(w, 200, map[string]any{
		"app":    "grabwire",
		"status": "ok",
		"server": string(st.Status),
	})
}

func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.Controller.State()
	web.JSON(w, 200, map[string]any{
		"port":           st.Port,
		"status":         string(st.Status),
		"scanInProgress": st.ScanInProgress,
		"backoffMs":      st.BackoffInterval.Milliseconds(),
		"badge":          badgeText(st),
	})
}

func badgeText(st reconnect.ServerState) string {
	if st.ScanInProgress {
		return "…"
	}
	if st.Status == reconnect.StatusConnected {
		return "✓"
	}
	return "✗"
}

func (h *Handlers) HandleRescan(w http.ResponseWriter, r *http.Request) {
	if h.Controller.Scanning() {
		web.JSON(w, http.StatusAccepted, map[string]any{"status": "already-scanning"})
		return
	}

	port, ok := h.Controller.FindServerPort(r.Context(), true)
	if !ok {
		web.JSON(w, 200, map[string]any{"found": false})
		return
	}
	web.JSON(w, 200, map[string]any{"found": true, "port": port})
}

func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	h.Hub.ServeWS(w, r)
}

func (h *Handlers) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Client.FetchConfig(r.Context())
	if err != nil {
		h.serverError(w, err)
		return
	}
	web.JSON(w, 200, cfg)
}

func (h *Handlers) HandleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var cfg serverclient.ServerConfig
	if err := decodeJSON(r, &cfg); err != nil {
		web.Error(w, 400, err)
		return
	}
	if err := h.Client.SaveConfig(r.Context(), cfg); err != nil {
		h.serverError(w, err)
		return
	}
	web.JSON(w, 200, map[string]any{"status": "saved"})
}

type downloadBody struct {
	URL        string `json:"url"`
	PageTitle  string `json:"pageTitle,omitempty"`
	IsPlaylist bool   `json:"isPlaylist,omitempty"`
}

func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	var body downloadBody
	if err := decodeJSON(r, &body); err != nil {
		web.Error(w, 400, err)
		return
	}
	if !strings.HasPrefix(body.URL, "http://") && !strings.HasPrefix(body.URL, "https://") {
		web.ErrorCode(w, 400, "bad_url", "url must be http or https", false)
		return
	}

	resp, err := h.Client.Download(r.Context(), serverclient.DownloadRequest{
		URL:        body.URL,
		PageTitle:  body.PageTitle,
		IsPlaylist: body.IsPlaylist,
	})
	if err != nil {
		h.serverError(w, err)
		return
	}

	h.Hub.Publish(events.DownloadQueued, map[string]any{
		"downloadId": resp.DownloadID,
		"url":        body.URL,
	})
	web.JSON(w, 200, resp)
}

func (h *Handlers) HandleVideos(w http.ResponseWriter, r *http.Request) {
	if h.Videos == nil {
		web.JSON(w, 200, map[string]any{"videos": []pagewatch.Video{}})
		return
	}
	web.JSON(w, 200, map[string]any{"videos": h.Videos.Videos()})
}

func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	page := queryParamInt(r, "page", 1)
	perPage := queryParamInt(r, "per_page", 25)

	hp, err := h.Client.History(r.Context(), page, perPage)
	if err != nil {
		h.serverError(w, err)
		return
	}
	web.JSON(w, 200, hp)
}

// serverError maps download-server failures: no discovered port is the
// agent's own 503, everything else is a 502 from the backend.
func (h *Handlers) serverError(w http.ResponseWriter, err error) {
	if errors.Is(err, serverclient.ErrNoPort) {
		web.ErrorCode(w, http.StatusServiceUnavailable, "server_disconnected", "download server not connected", true)
		return
	}
	web.Error(w, http.StatusBadGateway, fmt.Errorf("download server: %w", err))
}

func queryParamInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
