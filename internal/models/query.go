package models

import "encoding/json"

// QueryRequest is the body every assistant route accepts.
type QueryRequest struct {
	Query          string `json:"query"`
	Email          string `json:"email,omitempty"`
	SimulationMode bool   `json:"simulationMode,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
}

// QueryResponse is returned to the chat UI.
type QueryResponse struct {
	Response    string          `json:"response"`
	Errors      string          `json:"errors,omitempty"`
	RawResponse json.RawMessage `json:"raw_response,omitempty"`
	Context     string          `json:"context,omitempty"`
}
