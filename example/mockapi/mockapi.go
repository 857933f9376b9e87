// Package mockapi serves a fake search API for trying feedminer locally.
//
// POST /query answers every query with a rotating set of login events:
//
//	{"events": [{"src_ip": "203.0.113.7", "country": "NL", "count": 3}, ...]}
//
// POST /flat answers with the same events as a top-level array. Both require
// basic auth when credentials are configured.
package mockapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"
)

// Event is one fake search result.
type Event struct {
	SrcIP   string `json:"src_ip"`
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// API is the mock search API.
type API struct {
	username string
	password string
	size     int
	rotate   time.Duration
	now      func() time.Time

	mu        sync.Mutex
	events    []Event
	rotatedAt time.Time
}

// New creates an API requiring username and password, or no auth when both
// are empty. It returns size events and replaces one of them every rotate.
func New(username, password string, size int, rotate time.Duration) *API {
	if size < 1 {
		size = 1
	}
	a := &API{
		username: username,
		password: password,
		size:     size,
		rotate:   rotate,
		now:      time.Now,
	}
	for i := 0; i < size; i++ {
		a.events = append(a.events, randomEvent())
	}
	a.rotatedAt = a.now()
	return a
}

// Handler returns the API routes.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", func(w http.ResponseWriter, r *http.Request) {
		a.serve(w, r, func(events []Event) any { return map[string]any{"events": events} })
	})
	mux.HandleFunc("POST /flat", func(w http.ResponseWriter, r *http.Request) {
		a.serve(w, r, func(events []Event) any { return events })
	})
	return mux
}

func (a *API) serve(w http.ResponseWriter, r *http.Request, shape func([]Event) any) {
	if a.username != "" || a.password != "" {
		u, p, ok := r.BasicAuth()
		if !ok || u != a.username || p != a.password {
			w.Header().Set("WWW-Authenticate", `Basic realm="mockapi"`)
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(shape(a.Events())); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// Events returns the current events, replacing one if the rotation is due.
func (a *API) Events() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rotate > 0 && a.now().Sub(a.rotatedAt) >= a.rotate {
		i := rand.IntN(len(a.events))
		old := a.events[i].SrcIP
		a.events[i] = randomEvent()
		a.rotatedAt = a.now()
		slog.Info("event rotated", "from", old, "to", a.events[i].SrcIP)
	}

	out := make([]Event, len(a.events))
	copy(out, a.events)
	return out
}

var countries = []string{"NL", "US", "DE", "BR", "JP", "ZA"}

func randomEvent() Event {
	return Event{
		// TEST-NET-3, never routed
		SrcIP:   fmt.Sprintf("203.0.113.%d", 1+rand.IntN(254)),
		Country: countries[rand.IntN(len(countries))],
		Count:   1 + rand.IntN(20),
	}
}
