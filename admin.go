package peernetic

import (
	"encoding/json"
	"net/http"
)

// AdminServer exposes a Host's metrics over a tiny JSON-only HTTP surface.
// It intentionally carries none of theatre's admin_server.go HTML
// dashboard — spec's graphical-rendering Non-goal names that kind of
// rendering explicitly — but keeps the plain introspection endpoint, since
// ambient observability tooling is carried regardless of that Non-goal.
type AdminServer struct {
	host   *Host
	server *http.Server
}

// NewAdminServer constructs (but does not start) an AdminServer listening
// on addr.
func NewAdminServer(host *Host, addr string) *AdminServer {
	mux := http.NewServeMux()
	a := &AdminServer{host: host}
	mux.HandleFunc("/metrics", a.handleMetrics)
	a.server = &http.Server{Addr: addr, Handler: mux}
	return a
}

// Start begins serving in the background. Errors after startup are logged
// by the standard library's http.Server; Start itself never blocks.
func (a *AdminServer) Start() {
	go func() {
		_ = a.server.ListenAndServe()
	}()
}

// Stop shuts the admin server down.
func (a *AdminServer) Stop() error {
	return a.server.Close()
}

func (a *AdminServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(a.host.Metrics().Snapshot())
}
