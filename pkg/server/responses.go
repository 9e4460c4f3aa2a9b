package server

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// submitResponse is the ingress response envelope. Details carries the
// error-type discriminator on blocked requests.
type submitResponse struct {
	Status      string            `json:"status"`
	ExecutionID string            `json:"execution_id"`
	Response    string            `json:"response,omitempty"`
	LatencyMS   int64             `json:"latency_ms,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	PolicyID    string            `json:"policy_id,omitempty"`
	ApprovalID  string            `json:"approval_id,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
}
