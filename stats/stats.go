// Package stats implements the daemon's in-memory counters and the small
// JSON HTTP endpoint that serves them, grounded on
// responder/stats/json.go and sptp/client/stats.go.
package stats

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Counters is a thread-safe counter map, mirroring sptp/client/stats.go's
// Stats type.
type Counters struct {
	mu     sync.Mutex
	values map[string]int64
}

// New returns an empty Counters.
func New() *Counters {
	return &Counters{values: map[string]int64{}}
}

// Inc increments key by 1.
func (c *Counters) Inc(key string) {
	c.Add(key, 1)
}

// Add increments key by delta.
func (c *Counters) Add(key string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] += delta
}

// Set assigns key the value val.
func (c *Counters) Set(key string, val int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = val
}

// Snapshot returns a copy of all counters.
func (c *Counters) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

func (c *Counters) handler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.Snapshot()); err != nil {
		log.Errorf("[stats] failed to encode counters: %v", err)
	}
}

// Serve starts the JSON stats HTTP server on port. A port of 0 disables
// it, matching responder's monitoringport default-disabled convention.
func (c *Counters) Serve(port int) {
	if port == 0 {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", c.handler)
	addr := net.JoinHostPort("", strconv.Itoa(port))
	log.Infof("[stats] serving JSON counters on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("[stats] server stopped: %v", err)
	}
}
