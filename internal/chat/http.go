package chat

import "net/http"

type peersResponse struct {
	Peers []string `json:"peers"`
}

// PeersHandler serves the registered peer names, sorted, as JSON. The list is
// read inside the router loop.
func PeersHandler(r *Router) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		names, err := r.Peers(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(peersResponse{Peers: names})
	})
}
