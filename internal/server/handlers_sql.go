package server

import (
	"net/http"
	"strings"
)

type processRequest struct {
	Message   string         `json:"message"`
	ProjectID string         `json:"project_id"`
	Context   map[string]any `json:"context,omitempty"`
}

type executeRequest struct {
	Query     string `json:"query"`
	ProjectID string `json:"project_id"`
}

func (s *Server) handleProcessMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req processRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" || req.ProjectID == "" {
		writeDetail(w, http.StatusBadRequest, "message and project_id are required")
		return
	}

	snap, err := s.projects.Snapshot(r.Context(), req.ProjectID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := s.pipeline.ProcessMessage(r.Context(), req.Message, req.ProjectID, snap, req.Context)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExecuteQuery(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req executeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" || req.ProjectID == "" {
		writeDetail(w, http.StatusBadRequest, "query and project_id are required")
		return
	}

	snap, err := s.projects.Snapshot(r.Context(), req.ProjectID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := s.pipeline.ExecuteQuery(r.Context(), req.Query, req.ProjectID, snap)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuerySuggestions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		writeDetail(w, http.StatusBadRequest, "project_id is required")
		return
	}
	userInput := r.URL.Query().Get("user_input")

	snap, err := s.projects.Snapshot(r.Context(), projectID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	suggestions, err := s.pipeline.QuerySuggestions(r.Context(), projectID, userInput, snap)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"suggestions": suggestions})
}

func (s *Server) handleExplainQuery(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req executeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" || req.ProjectID == "" {
		writeDetail(w, http.StatusBadRequest, "query and project_id are required")
		return
	}

	snap, err := s.projects.Snapshot(r.Context(), req.ProjectID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := s.pipeline.ExplainQuery(r.Context(), req.Query, req.ProjectID, snap)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOptimizeQuery(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req executeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" || req.ProjectID == "" {
		writeDetail(w, http.StatusBadRequest, "query and project_id are required")
		return
	}

	snap, err := s.projects.Snapshot(r.Context(), req.ProjectID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	advice, err := s.pipeline.OptimizeQuery(r.Context(), req.Query, snap)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"optimization": advice})
}
