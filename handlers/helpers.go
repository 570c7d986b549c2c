package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"gatherlyAPI/internal/apperrors"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithServiceError maps the service error taxonomy onto HTTP status
// codes. Anything outside the taxonomy is logged and hidden behind a 500.
func respondWithServiceError(w http.ResponseWriter, err error) {
	var vErr *apperrors.ValidationError
	switch {
	case errors.As(err, &vErr):
		respondWithJSON(w, http.StatusBadRequest, map[string]any{
			"error":  vErr.Error(),
			"fields": vErr.Fields,
		})
	case errors.Is(err, apperrors.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrForbidden):
		respondWithError(w, http.StatusForbidden, "You are not allowed to do that")
	case errors.Is(err, apperrors.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		respondWithError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("Handler: internal error: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
