// Package api provides accessplane's read-only admin/introspection HTTP
// surface: list shard groups, inspect the current ShardConfiguration
// generation, and view trip-switch state. The event/query RPC surface
// itself (§6) is an external collaborator per §1's scope note, so
// nothing here accepts a write — this is management-plane only.
//
// Routing is built on github.com/gorilla/mux rather than a hand-rolled
// mux wrapper, since the admin surface needs only a handful of routes
// and no dashboard or static-asset serving.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"accessplane/logger"
	"accessplane/models"
	"accessplane/tripswitch"
)

// ConfigSource is the read side of shard.ConfigPublisher the admin
// surface needs: the currently published ShardConfiguration.
type ConfigSource interface {
	Current() *models.ShardConfiguration
}

// NewRouter builds the admin surface's mux.Router against cfg, the
// Instance Manager's published configuration.
func NewRouter(cfg ConfigSource) *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	r.HandleFunc("/api/v1/status", statusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/shard-groups", shardGroupsHandler(cfg)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/shard-groups/{role}", shardGroupsForRoleHandler(cfg)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/shard-configuration/generation", generationHandler(cfg)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/trip-switch", tripSwitchHandler).Methods(http.MethodGet)
	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)
		logger.Trace("[admin] %s %s %s - %v", req.RemoteAddr, req.Method, req.URL.Path, time.Since(start))
	})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("[admin] encoding response: %v", err)
	}
}

func statusHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"tripped":   tripswitch.Tripped(),
	})
}

// shardGroupsHandler lists every shard group across every role.
func shardGroupsHandler(cfg ConfigSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		current := cfg.Current()
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"generation": current.Generation,
			"groups":     current.Groups,
		})
	}
}

// shardGroupsForRoleHandler lists the shard groups for a single role,
// ordered by hashRangeStart ascending (models.ShardConfiguration.Sorted).
func shardGroupsForRoleHandler(cfg ConfigSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := models.Role(mux.Vars(r)["role"])
		current := cfg.Current()
		groups := current.Sorted(role)
		if groups == nil {
			groups = []models.ShardGroup{}
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"role":       role,
			"generation": current.Generation,
			"groups":     groups,
		})
	}
}

func generationHandler(cfg ConfigSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]interface{}{"generation": cfg.Current().Generation})
	}
}

func tripSwitchHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"tripped": tripswitch.Tripped()})
}
