package web

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/metascaler/internal/core"
	"github.com/JonMunkholm/metascaler/internal/logging"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// startRunResponse is returned when a run is accepted.
type startRunResponse struct {
	RunID    string `json:"run_id"`
	Status   string `json:"status"`
	Progress string `json:"progress"`
	Report   string `json:"report"`
}

// handleStartRun validates a submission and starts it in the background.
// Fatal file and column errors are returned before the run is accepted.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRunRequest(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	runID, err := s.service.StartRun(r.Context(), req)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	logging.FromContext(r.Context()).Info("run accepted",
		"run_id", runID,
		"file", req.FileName,
		"dry_run", req.DryRun,
		"asset_types", req.AssetTypes,
	)

	base := "/api/runs/" + runID
	w.Header().Set("Location", base)
	writeJSONStatus(w, http.StatusAccepted, startRunResponse{
		RunID:    runID,
		Status:   string(core.PhaseStarting),
		Progress: base + "/progress",
		Report:   base,
	})
}

// handleListRuns returns stored run summaries, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			err = fmt.Errorf("%w: limit must be a positive integer", core.ErrInvalidRequest)
			respondError(w, r, err, http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	runs, err := s.service.History(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"runs": runs})
}

// handleGetRun returns the report of a finished run. While the run is still
// executing it answers 202 with the current progress, unless ?wait=true asks
// to block until the report is ready.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		report, err := s.service.GetResult(r.Context(), runID)
		if err != nil {
			respondError(w, r, err, statusFor(err))
			return
		}
		writeJSON(w, report)
		return
	}

	if progress, err := s.service.GetProgress(runID); err == nil {
		if !progress.Finished() {
			writeJSONStatus(w, http.StatusAccepted, progress)
			return
		}
		if progress.Phase == core.PhaseFailed {
			respondError(w, r, errors.New(progress.Error), http.StatusInternalServerError)
			return
		}
	}

	report, err := s.service.GetReport(r.Context(), runID)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, report)
}

// handleCancelRun stops a run from starting new rows.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if err := s.service.CancelRun(runID); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	logging.FromContext(r.Context()).Info("run cancel requested", "run_id", runID)
	writeJSON(w, map[string]string{"run_id": runID, "status": "cancelling"})
}

// handleRunProgress streams progress as server-sent events. The event ID is
// the number of processed rows, so a reconnecting client passing
// Last-Event-ID (or ?lastEventId=) skips updates it has already seen.
func (s *Server) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	lastEventIDStr := r.Header.Get("Last-Event-ID")
	if lastEventIDStr == "" {
		lastEventIDStr = r.URL.Query().Get("lastEventId")
	}
	lastEventID := -1
	if lastEventIDStr != "" {
		if n, err := strconv.Atoi(lastEventIDStr); err == nil {
			lastEventID = n
		}
	}

	progressCh, err := s.service.SubscribeProgress(runID)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var last core.RunProgress
	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				data, _ := json.Marshal(last)
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				_ = rc.Flush()
				return
			}
			last = progress

			// Phase changes are always sent; row updates only past the resume point
			if progress.ProcessedRows <= lastEventID && !progress.Finished() && progress.Phase != core.PhaseStarting {
				continue
			}
			lastEventID = progress.ProcessedRows

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.ProcessedRows, data)
			if err := rc.Flush(); err != nil {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

// outcomesHeader is the column layout of the outcomes export.
var outcomesHeader = []string{
	"row_index",
	"identity_value",
	"status",
	"matched_asset_ids",
	"error_code",
	"error_detail",
}

// handleExportOutcomes downloads every row outcome of a finished run as CSV.
// ?status=failed (repeatable or comma-separated) narrows the export.
func (s *Server) handleExportOutcomes(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	report, err := s.service.GetReport(r.Context(), runID)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	wanted := make(map[core.Status]bool)
	for _, v := range splitList(r.URL.Query()["status"]) {
		wanted[core.Status(strings.ToLower(v))] = true
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-outcomes.csv"`, runID))

	cw := csv.NewWriter(w)
	_ = cw.Write(outcomesHeader)
	for _, o := range report.Outcomes {
		if len(wanted) > 0 && !wanted[o.Status] {
			continue
		}
		_ = cw.Write([]string{
			strconv.Itoa(o.RowIndex),
			o.IdentityValue,
			string(o.Status),
			strings.Join(o.MatchedAssetIDs, ";"),
			o.ErrorCode,
			o.ErrorDetail,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logging.FromContext(r.Context()).Error("outcomes export failed", "run_id", runID, "error", err)
	}
}
