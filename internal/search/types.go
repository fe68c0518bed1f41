package search

import (
	"errors"
	"fmt"

	"github.com/kamusis/sloka-search/internal/corpus"
)

// Result is one matched verse. Verse points into the engine's catalog.
type Result struct {
	Verse    *corpus.VerseRecord `json:"verse"`
	Score    float64             `json:"similarity_score"`
	Position int                 `json:"position"`
	Why      string              `json:"why"`
}

// State is the engine lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateBootstrapping
	StateReady
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBootstrapping:
		return "bootstrapping"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time readiness snapshot.
type Status struct {
	Ready       bool   `json:"ready"`
	ModelLoaded bool   `json:"model_loaded"`
	IndexLoaded bool   `json:"index_loaded"`
	DataLoaded  bool   `json:"data_loaded"`
	TotalVerses int    `json:"total_verses"`
	Indexed     int    `json:"indexed_verses"`
	ModelID     string `json:"model_id,omitempty"`
	State       State  `json:"state"`
	Reason      string `json:"reason,omitempty"`
}

// Response is the outcome of a search or sample call as reported to callers.
type Response struct {
	Results      []Result `json:"results"`
	TotalResults int      `json:"total_results"`
	Success      bool     `json:"success"`
	Error        string   `json:"error,omitempty"`
}

// NewResponse shapes results and err into a Response. Results is never nil.
func NewResponse(results []Result, err error) Response {
	if err != nil {
		var ve *ValidationError
		msg := err.Error()
		if !errors.As(err, &ve) && errors.Is(err, ErrNotReady) {
			msg = "semantic search is not available: " + unwrapReason(err)
		}
		return Response{Results: []Result{}, Error: msg}
	}
	if results == nil {
		results = []Result{}
	}
	return Response{Results: results, TotalResults: len(results), Success: true}
}
