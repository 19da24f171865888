package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/MrWong99/warroom/internal/studio"
)

type strategistRequest struct {
	Image    string `json:"image"`
	MIMEType string `json:"mime_type"`
	Copy     string `json:"copy"`
}

type editorRequest struct {
	Image    string `json:"image"`
	MIMEType string `json:"mime_type"`
	Prompt   string `json:"prompt"`
}

type propagandaRequest struct {
	Image       string `json:"image"`
	MIMEType    string `json:"mime_type"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	Resolution  string `json:"resolution"`
}

type forgeRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	Size        string `json:"size"`
}

type imageResponse struct {
	Image string `json:"image"`
}

type artifactResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	URL      string `json:"url"`
}

func (s *Server) handleStrategist(w http.ResponseWriter, r *http.Request) {
	var req strategistRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, "strategist", err)
		return
	}
	img, err := parseImage(req.Image, req.MIMEType)
	if err != nil {
		s.fail(w, r, "strategist", err)
		return
	}
	creative, err := s.cfg.Studio.Strategist(r.Context(), studio.StrategistRequest{Image: img, Copy: req.Copy})
	if err != nil {
		s.fail(w, r, "strategist", err)
		return
	}
	writeJSON(w, http.StatusOK, creative)
}

func (s *Server) handleEditor(w http.ResponseWriter, r *http.Request) {
	var req editorRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, "editor", err)
		return
	}
	img, err := parseImage(req.Image, req.MIMEType)
	if err != nil {
		s.fail(w, r, "editor", err)
		return
	}
	out, err := s.cfg.Studio.Edit(r.Context(), studio.EditRequest{Image: img, Prompt: req.Prompt})
	if err != nil {
		s.fail(w, r, "editor", err)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{Image: out})
}

func (s *Server) handlePropaganda(w http.ResponseWriter, r *http.Request) {
	var req propagandaRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, "propaganda", err)
		return
	}
	img, err := parseImage(req.Image, req.MIMEType)
	if err != nil {
		s.fail(w, r, "propaganda", err)
		return
	}
	a, err := s.cfg.Studio.Propaganda(r.Context(), studio.VideoRequest{
		Image:       img,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Resolution:  req.Resolution,
	})
	if err != nil {
		s.fail(w, r, "propaganda", err)
		return
	}
	writeJSON(w, http.StatusOK, artifactResponse{
		ID:       a.ID,
		Name:     a.Name,
		MIMEType: a.MIMEType,
		URL:      "/api/artifacts/" + a.ID,
	})
}

func (s *Server) handleForge(w http.ResponseWriter, r *http.Request) {
	var req forgeRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, "forge", err)
		return
	}
	out, err := s.cfg.Studio.Forge(r.Context(), studio.ForgeRequest{
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Size:        req.Size,
	})
	if err != nil {
		s.fail(w, r, "forge", err)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{Image: out})
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	a, err := s.cfg.Artifacts.Get(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "artifact", err)
		return
	}
	h := w.Header()
	h.Set("Content-Type", a.MIMEType)
	h.Set("Content-Length", strconv.Itoa(len(a.Data)))
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Data)
}
