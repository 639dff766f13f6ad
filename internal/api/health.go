package api

import "net/http"

// health reports liveness. Registered outside the middleware stack so probes
// are never rate limited or logged per hit.
func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
