package httpapi

import (
	"encoding/json"
	"net/http"
)

// statusResponse wraps the multiplexer's per-child health report for the
// protected GET /status surface (spec §4.6).
type statusResponse struct {
	Children []childStatus `json:"children"`
}

type childStatus struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Up        bool   `json:"up"`
	Tools     int    `json:"tools"`
	Resources int    `json:"resources"`
	Prompts   int    `json:"prompts"`
}

func (rt *Router) statusHandler(w http.ResponseWriter, r *http.Request) {
	reports := rt.mux.Health()
	resp := statusResponse{Children: make([]childStatus, len(reports))}
	for i, rep := range reports {
		resp.Children[i] = childStatus{
			Name:      rep.Name,
			State:     rep.State,
			Up:        rep.Up,
			Tools:     rep.Tools,
			Resources: rep.Resources,
			Prompts:   rep.Prompts,
		}
		if rt.telemetry != nil {
			rt.telemetry.RecordChildUp(r.Context(), rep.Name, rep.Up)
		}
	}
	if rt.telemetry != nil {
		// Pulled on demand so nothing is exported without a GET /status call.
		_, _ = rt.telemetry.Collect(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
