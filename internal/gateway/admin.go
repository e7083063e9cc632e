package gateway

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/billie-coop/ollamagate/internal/config"
	"github.com/billie-coop/ollamagate/internal/llm/queue"
	"github.com/billie-coop/ollamagate/internal/origin"
)

func (s *Server) adminRoutes(r chi.Router) {
	r.Get("/settings", s.handleSettings)
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.status())
	})
	r.Post("/clear", s.handleClear)

	r.Get("/limits", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.app.Queue.Limits())
	})
	r.Put("/limits", s.handleSetLimits)
	r.Put("/endpoint", s.handleSetEndpoint)

	r.Route("/origins", func(or chi.Router) {
		or.Get("/", s.handleListOrigins)
		or.Post("/", s.handleAddOrigin)
		or.Delete("/", s.handleRemoveOrigin)
		or.Post("/allow-all", s.handleAllowAll)
	})

	r.Get("/streams", s.handleListStreams)
	r.Delete("/streams/{id}", s.handleCancelStream)

	r.Get("/models", s.handleModels)
	r.Post("/prompt", s.handlePrompt)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.app.Settings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	cleared := s.app.ClearQueue()
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "cleared": cleared})
}

func (s *Server) handleSetLimits(w http.ResponseWriter, r *http.Request) {
	var limits queue.Limits
	if err := decodeJSON(r, &limits); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	applied, err := s.app.SetLimits(r.Context(), limits)
	if err != nil {
		// applied anyway, only persisting failed
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

func (s *Server) handleSetEndpoint(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Endpoint string `json:"endpoint"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.app.SetEndpoint(r.Context(), body.Endpoint); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrInvalidEndpoint) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "endpoint": s.app.Config.BaseURL(r.Context())})
}

func (s *Server) handleListOrigins(w http.ResponseWriter, r *http.Request) {
	list, err := s.app.Origins.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = origin.AllowList{}
	}
	writeJSON(w, http.StatusOK, list)
}

// originRequest names either a pattern to store as-is, or a page URL whose
// origin should be allowed.
type originRequest struct {
	Pattern string `json:"pattern,omitempty"`
	Origin  string `json:"origin,omitempty"`
}

func (s *Server) handleAddOrigin(w http.ResponseWriter, r *http.Request) {
	var body originRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var err error
	if body.Origin != "" {
		_, err = s.app.Origins.AddOrigin(r.Context(), body.Origin)
	} else {
		err = s.app.Origins.Add(r.Context(), body.Pattern)
	}
	if err != nil {
		writeError(w, originStatus(err), err)
		return
	}
	s.handleListOrigins(w, r)
}

func (s *Server) handleRemoveOrigin(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		var body originRequest
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		pattern = body.Pattern
	}
	if err := s.app.Origins.Remove(r.Context(), pattern); err != nil {
		writeError(w, originStatus(err), err)
		return
	}
	s.handleListOrigins(w, r)
}

func (s *Server) handleAllowAll(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Origins.AllowAllOrigins(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.handleListOrigins(w, r)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.app.Models(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "models": models})
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.Service.SendPrompt(r.Context(), body.Model, body.Prompt))
}

func originStatus(err error) int {
	if errors.Is(err, origin.ErrInvalidPattern) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
