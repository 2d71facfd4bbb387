package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// idParam resolves the {id} route parameter, with a path-segment fallback
// for direct handler tests without a chi route context.
func idParam(r *http.Request, marker string) (int64, bool) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		for i := 0; i < len(segments)-1; i++ {
			if segments[i] == marker {
				raw = segments[i+1]
				break
			}
		}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseIntDefault(raw string, def int) int {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
