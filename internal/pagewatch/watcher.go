// Package pagewatch attaches to a running Chrome over CDP and watches
// page targets for playable video, publishing findings for UI consumers
// and relaying user-initiated downloads to the companion server.
package pagewatch

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/grabwire/grabwire/internal/events"
)

// Video is one playable media element found on a page.
type Video struct {
	TabID    string    `json:"tabId"`
	PageURL  string    `json:"pageUrl"`
	Title    string    `json:"title"`
	Src      string    `json:"src"`
	Kind     string    `json:"kind"` // "video", "source", "url"
	FoundAt  time.Time `json:"foundAt"`
}

// detectScript collects candidate media sources from the page: <video>
// elements, their <source> children, and obvious media URLs in links.
const detectScript = `(() => {
	const out = [];
	for (const v of document.querySelectorAll('video')) {
		if (v.src) out.push({src: v.src, kind: 'video'});
		for (const s of v.querySelectorAll('source')) {
			if (s.src) out.push({src: s.src, kind: 'source'});
		}
	}
	for (const a of document.querySelectorAll('a[href]')) {
		out.push({src: a.href, kind: 'url'});
	}
	return out;
})()`

type detected struct {
	Src  string `json:"src"`
	Kind string `json:"kind"`
}

type Watcher struct {
	CdpURL   string
	Interval time.Duration
	Hub      *events.Hub

	mu   sync.Mutex
	seen map[string]Video
}

func New(cdpURL string, interval time.Duration, hub *events.Hub) *Watcher {
	return &Watcher{
		CdpURL:   cdpURL,
		Interval: interval,
		Hub:      hub,
		seen:     make(map[string]Video),
	}
}

// Run polls page targets until the context ends. Chrome going away is not
// fatal; the watcher just retries on the next tick.
func (w *Watcher) Run(ctx context.Context) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, w.CdpURL)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		w.sweep(browserCtx)
	}
}

func (w *Watcher) sweep(browserCtx context.Context) {
	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		slog.Debug("target list failed", "err", err)
		return
	}

	for _, t := range pageTargets(targets) {
		tabCtx, cancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(t.TargetID))
		var found []detected
		evalCtx, evalCancel := context.WithTimeout(tabCtx, 5*time.Second)
		err := chromedp.Run(evalCtx, chromedp.Evaluate(detectScript, &found))
		evalCancel()
		cancel()
		if err != nil {
			slog.Debug("page eval failed", "tab", string(t.TargetID), "err", err)
			continue
		}

		for _, d := range found {
			if d.Kind == "url" && !IsMediaURL(d.Src) {
				continue
			}
			w.record(Video{
				TabID:   string(t.TargetID),
				PageURL: t.URL,
				Title:   t.Title,
				Src:     d.Src,
				Kind:    d.Kind,
			})
		}
	}
}

func (w *Watcher) record(v Video) {
	key := v.TabID + "|" + v.Src
	w.mu.Lock()
	if _, dup := w.seen[key]; dup {
		w.mu.Unlock()
		return
	}
	v.FoundAt = time.Now().UTC()
	w.seen[key] = v
	w.mu.Unlock()

	slog.Info("video found", "page", v.PageURL, "kind", v.Kind)
	if w.Hub != nil {
		w.Hub.Publish(events.VideoFound, map[string]any{
			"tabId":   v.TabID,
			"pageUrl": v.PageURL,
			"title":   v.Title,
			"src":     v.Src,
			"kind":    v.Kind,
		})
	}
}

// Videos returns detected videos, newest first.
func (w *Watcher) Videos() []Video {
	w.mu.Lock()
	out := make([]Video, 0, len(w.seen))
	for _, v := range w.seen {
		out = append(out, v)
	}
	w.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].FoundAt.After(out[j].FoundAt) })
	return out
}

var mediaExtensions = []string{
	".mp4", ".webm", ".mkv", ".mov", ".avi", ".flv",
	".m3u8", ".mpd", ".ts", ".mp3", ".m4a", ".ogg",
}

var mediaHosts = []string{
	"youtube.com/watch", "youtu.be/", "vimeo.com/", "dailymotion.com/video",
}

// IsMediaURL reports whether a URL looks like playable media: either a
// direct file with a known media extension or a watch page on a known
// video host.
func IsMediaURL(raw string) bool {
	u := strings.ToLower(raw)
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return false
	}
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		if hasMediaExtension(u[:i]) {
			return true
		}
	} else if hasMediaExtension(u) {
		return true
	}
	for _, h := range mediaHosts {
		if strings.Contains(u, h) {
			return true
		}
	}
	return false
}

func hasMediaExtension(path string) bool {
	for _, ext := range mediaExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// pageTargets filters target infos down to real pages worth sweeping.
func pageTargets(infos []*target.Info) []*target.Info {
	out := make([]*target.Info, 0, len(infos))
	for _, t := range infos {
		if t.Type != "page" || isInternalURL(t.URL) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func isInternalURL(url string) bool {
	switch url {
	case "", "about:blank", "chrome://newtab/", "chrome://new-tab-page/":
		return true
	}
	return strings.HasPrefix(url, "chrome://") ||
		strings.HasPrefix(url, "chrome-extension://") ||
		strings.HasPrefix(url, "devtools://")
}
