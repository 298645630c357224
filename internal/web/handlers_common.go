package web

import (
	"net/http"

	"github.com/JonMunkholm/metascaler/internal/core"
)

// healthResponse reports liveness and run slot usage.
type healthResponse struct {
	Status string                `json:"status"`
	Runs   core.RunLimiterStatus `json:"runs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{Status: "ok", Runs: s.service.LimiterStatus()})
}

// handleFormat describes the reference file grammar.
func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.FormatGuide())
}

// planResponse is a column plan preview.
type planResponse struct {
	FileName string        `json:"file_name"`
	Rows     int           `json:"rows"`
	Columns  []core.Column `json:"columns"`
	Updates  bool          `json:"has_updates"`
}

// handlePlan parses and classifies a submission without running it, so
// operators can check which columns will be applied or ignored.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRunRequest(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	plan, table, err := s.service.Prepare(req)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, planResponse{
		FileName: req.FileName,
		Rows:     len(table.Rows),
		Columns:  plan.Columns,
		Updates:  plan.HasUpdates(),
	})
}
