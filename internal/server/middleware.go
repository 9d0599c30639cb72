package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	sessionHeader    = "X-Session-ID"
	maxSessionLength = 128
)

type ctxKey int

const sessionKey ctxKey = iota

// session binds every request to a client session. Requests without a usable
// X-Session-ID get a fresh one, echoed back so the client can keep it.
func session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(sessionHeader)
		if id == "" || len(id) > maxSessionLength {
			id = uuid.NewString()
		}
		w.Header().Set(sessionHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, id)))
	})
}

func sessionID(r *http.Request) string {
	id, _ := r.Context().Value(sessionKey).(string)
	return id
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(r.Method, route, strconv.Itoa(status), elapsed)

		log.WithFields(log.Fields{
			"method":     r.Method,
			"route":      route,
			"status":     status,
			"duration":   elapsed,
			"request_id": chimiddleware.GetReqID(r.Context()),
		}).Debug("Handled request")
	})
}
