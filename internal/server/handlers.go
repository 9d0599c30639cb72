package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"storefront/recommender/internal/domain"
)

const maxBodyBytes = 1 << 20

// productPageView is the guard key suffix of the product page. A session has one
// product page, so a newer request supersedes the one still computing.
const productPageView = "product-page"

type viewRequest struct {
	Product domain.Product `json:"product"`
}

type searchRequest struct {
	Query string `json:"query"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProductPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	viewKey := sessionID(r) + ":" + productPageView

	page, err := s.engine.ProductPage(r.Context(), viewKey, scopeOf(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	tracker := s.sessions.ForSession(sessionID(r))
	sections := s.engine.BrowsePage(r.Context(), tracker, scopeOf(r))
	writeJSON(w, http.StatusOK, sections)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Product.ID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "product.id is required"})
		return
	}

	s.sessions.ForSession(sessionID(r)).TrackProductView(r.Context(), req.Product)
	if s.publisher != nil {
		s.publisher.PublishView(r.Context(), req.Product)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
		return
	}

	s.sessions.ForSession(sessionID(r)).TrackSearch(r.Context(), req.Query)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleAffinity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.ForSession(sessionID(r)).Snapshot(r.Context()))
}

func (s *Server) handleClearAffinity(w http.ResponseWriter, r *http.Request) {
	tracker := s.sessions.ForSession(sessionID(r))

	switch r.URL.Query().Get("journal") {
	case "":
		tracker.ClearAll(r.Context())
	case "viewed":
		tracker.ClearRecentlyViewed(r.Context())
	case "searches":
		tracker.ClearSearchHistory(r.Context())
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "journal must be viewed or searches"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func scopeOf(r *http.Request) domain.Scope {
	return domain.Scope{ShopID: strings.TrimSpace(r.URL.Query().Get("shop"))}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	var fetchErr *domain.FetchError

	switch {
	case errors.Is(err, domain.ErrStale):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrProductNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &fetchErr):
		log.Warnf("⚠️ %v", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "catalog unavailable"})
	default:
		log.Errorf("❌ Request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("❌ Failed to encode response: %v", err)
	}
}
