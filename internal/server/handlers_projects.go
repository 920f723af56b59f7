package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/quantum-lens/lens/internal/sandbox"
)

// dbConfigPayload is the connection descriptor as it travels over the API.
type dbConfigPayload struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

func (p dbConfigPayload) toConfig() sandbox.Config {
	return sandbox.Config{
		Host:     p.Host,
		Port:     p.Port,
		User:     p.User,
		Password: p.Password,
		Database: p.Database,
	}
}

type projectRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	DBConfig    *dbConfigPayload `json:"db_config"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	projects, err := s.projects.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req projectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" || req.DBConfig == nil {
		writeDetail(w, http.StatusBadRequest, "name and db_config are required")
		return
	}

	created, err := s.projects.Create(r.Context(), userID, req.Name, req.Description, req.DBConfig.toConfig())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	p, err := s.projects.Get(r.Context(), chi.URLParam(r, "projectID"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req projectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var cfg *sandbox.Config
	if req.DBConfig != nil {
		c := req.DBConfig.toConfig()
		cfg = &c
	}

	projectID := chi.URLParam(r, "projectID")
	if err := s.projects.Update(r.Context(), projectID, userID, req.Name, req.Description, cfg); err != nil {
		writeError(w, err)
		return
	}

	updated, err := s.projects.Get(r.Context(), projectID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	projectID := chi.URLParam(r, "projectID")
	if err := s.projects.Delete(r.Context(), projectID, userID); err != nil {
		writeError(w, err)
		return
	}
	// Drop the project's sandbox along with the project.
	if err := s.pipeline.Cleanup(projectID); err != nil {
		s.logger.Warn("failed to clean up sandbox", "project_id", projectID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleDatabaseInfo(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	snap, err := s.projects.Snapshot(r.Context(), chi.URLParam(r, "projectID"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
