package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"chatserver/internal/service"
)

type contextKey string

// UserIDKey carries the verified user identity through the request context.
// Authentication itself happens upstream; this core trusts the id blindly.
const UserIDKey contextKey = "user-id"

func requesterID(r *http.Request) (uint64, bool) {
	userID, ok := r.Context().Value(UserIDKey).(uint64)
	return userID, ok
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Unauthorized and NotFound stay distinguishable; anything unclassified is a
// transient store failure the caller may retry.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		http.Error(w, "You are not allowed to perform this operation.", http.StatusForbidden)
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, "The requested resource does not exist.", http.StatusNotFound)
	case errors.Is(err, service.ErrConflict):
		http.Error(w, "The resource already exists.", http.StatusConflict)
	case errors.Is(err, service.ErrInvalid):
		http.Error(w, "The request is not valid.", http.StatusBadRequest)
	default:
		http.Error(w, "Temporary failure, retry later.", http.StatusServiceUnavailable)
	}
}

func parseUint(raw string) (uint64, error) {
	return strconv.ParseUint(raw, 10, 64)
}

// queryUint extracts an optional numeric query parameter, 0 when absent.
func queryUint(r *http.Request, name string) uint64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := parseUint(raw)
	if err != nil {
		return 0
	}
	return n
}

func pageSize(r *http.Request) int {
	const defaultPageSize, maxPageSize = 20, 100
	n := queryUint(r, "limit")
	if n == 0 {
		return defaultPageSize
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return int(n)
}
