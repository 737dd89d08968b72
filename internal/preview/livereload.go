package preview

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

const heartbeatInterval = 30 * time.Second

// reloadEvent is sent to browsers as a "build" server-sent event.
type reloadEvent struct {
	BuildID string `json:"build_id"`
	Outcome string `json:"outcome"`
}

// LiveReloadHub pushes finished builds to connected browsers over SSE.
type LiveReloadHub struct {
	mu     sync.Mutex
	subs   map[chan reloadEvent]struct{}
	last   reloadEvent
	closed chan struct{}
}

// NewLiveReloadHub returns an empty hub.
func NewLiveReloadHub() *LiveReloadHub {
	return &LiveReloadHub{subs: make(map[chan reloadEvent]struct{}), closed: make(chan struct{})}
}

func (h *LiveReloadHub) subscribe() (chan reloadEvent, reloadEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.closed:
		return nil, reloadEvent{}, false
	default:
	}
	ch := make(chan reloadEvent, 4)
	h.subs[ch] = struct{}{}
	return ch, h.last, true
}

func (h *LiveReloadHub) unsubscribe(ch chan reloadEvent) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// ServeHTTP streams build events. The latest build is sent on connect so
// the page learns which build it was rendered from.
func (h *LiveReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ch, last, ok := h.subscribe()
	if !ok {
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	_, _ = fmt.Fprint(w, "retry: 2000\n\n")
	if last.BuildID != "" {
		writeEvent(w, last)
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.closed:
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
		case ev, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, ev)
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, ev reloadEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if _, err := fmt.Fprintf(w, "event: build\ndata: %s\n\n", data); err != nil {
		slog.Debug("livereload write failed", logfields.Error(err))
	}
}

// Clients returns the number of connected browsers.
func (h *LiveReloadHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Broadcast announces a finished build. Empty and repeated build IDs are
// ignored; a browser that is not keeping up misses the event and catches
// up with the next one.
func (h *LiveReloadHub) Broadcast(buildID, outcome string) {
	ev := reloadEvent{BuildID: buildID, Outcome: outcome}
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.closed:
		return
	default:
	}
	if buildID == "" || buildID == h.last.BuildID {
		return
	}
	h.last = ev
	missed := 0
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			missed++
		}
	}
	slog.Debug("livereload broadcast", logfields.BuildID(buildID), logfields.Count(len(h.subs)), "missed", missed)
}

// Shutdown disconnects every browser and stops further broadcasts.
func (h *LiveReloadHub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.closed:
	default:
		close(h.closed)
	}
}

// LiveReloadScript is served at /livereload.js and injected into every HTML page.
// The first event identifies the build the page came from; any later build
// reloads the page, including failed ones so the error page shows up.
const LiveReloadScript = `(() => {
  if (window.__sitebuilderLiveReload) return;
  window.__sitebuilderLiveReload = true;
  let seen = null;
  const es = new EventSource('/livereload');
  es.addEventListener('build', (e) => {
    const ev = JSON.parse(e.data);
    if (seen !== null && ev.build_id !== seen) {
      location.reload();
      return;
    }
    seen = ev.build_id;
  });
})();`
