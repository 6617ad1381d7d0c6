package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/banshee-data/physio.track/internal/pose/l1landmarks"
	"github.com/banshee-data/physio.track/internal/pose/l4model"
	"github.com/banshee-data/physio.track/internal/pose/pipeline"
	"github.com/banshee-data/physio.track/internal/pose/training"
	"github.com/banshee-data/physio.track/internal/version"
)

const defaultRunLimit = 20

// handleFrames feeds one frame or a {"frames":[...]} batch to the analyzer.
// Frames that fail normalization are still accepted; the analyzer counts
// them as dropped.
func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		s.writeJSONError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	frames, err := l1landmarks.DecodeFrames(body)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, f := range frames {
		s.analyzer.OnPoseFrame(f)
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(frames)})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.analyzer.GetMetrics())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	switch mux.Vars(r)["action"] {
	case "reset":
		s.analyzer.ResetSession()
	case "start":
		s.analyzer.Start()
	case "stop":
		s.analyzer.Stop()
	}
	writeJSON(w, http.StatusOK, s.analyzer.GetMetrics())
}

type trainRequest struct {
	Sequences []training.LabeledSequence `json:"sequences"`
}

// handleTrain runs a training pass synchronously; the request context
// bounds it.
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err := dec.Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid training request: %v", err))
		return
	}

	sum, err := s.analyzer.Train(r.Context(), req.Sequences)
	var dataErr *training.TrainingDataError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sum)
	case errors.As(err, &dataErr):
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, l4model.ErrTrainingInProgress):
		s.writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrTrainingUnavailable):
		s.writeJSONError(w, http.StatusNotImplemented, err.Error())
	default:
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	if s.model == nil {
		s.writeJSONError(w, http.StatusNotFound, "no model is loaded by this backend")
		return
	}
	writeJSON(w, http.StatusOK, s.model.Info())
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeJSONError(w, http.StatusNotFound, "no training ledger configured")
		return
	}
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			s.writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	runs, err := s.runs.ListRuns(r.Context(), r.URL.Query().Get("model_key"), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*training.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// lookupRun resolves the {id} route variable, writing the error response
// itself when the run is unavailable.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*training.Run, bool) {
	if s.runs == nil {
		s.writeJSONError(w, http.StatusNotFound, "no training ledger configured")
		return nil, false
	}
	run, err := s.runs.GetRun(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, training.ErrRunNotFound) {
		s.writeJSONError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return run, true
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
