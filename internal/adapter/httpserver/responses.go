package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/goldnightmare/analysis-api/internal/domain"
	"github.com/goldnightmare/analysis-api/internal/usecase"
)

// envelope is the uniform response shape: {success, error?, ...fields}.
type envelope map[string]any

// Messages used when an error carries no localised text of its own.
const (
	msgGenericFailure = "حدث خطأ غير متوقع، يرجى المحاولة لاحقاً"
	msgBadRequest     = "طلب غير صحيح"
	msgNotFound       = "المورد المطلوب غير موجود"
	msgNotInitialised = "service-not-initialised"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOK emits a success envelope with the given payload fields.
func writeOK(w http.ResponseWriter, payload envelope) {
	out := envelope{"success": true}
	for k, v := range payload {
		out[k] = v
	}
	writeJSON(w, http.StatusOK, out)
}

// writeFailure emits {success:false, error:msg} with the given status.
func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{"success": false, "error": msg})
}

// writeError maps a domain error onto the edge contract: validation 400,
// unknown resource 404, business denials and upstream failures 200 with
// success:false, anything else a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeFailure(w, http.StatusBadRequest, usecase.UserMessage(err, msgBadRequest))
	case errors.Is(err, domain.ErrNotFound):
		writeFailure(w, http.StatusNotFound, usecase.UserMessage(err, msgNotFound))
	case errors.Is(err, domain.ErrAuthFailed),
		errors.Is(err, domain.ErrInactiveAccount),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrQuotaExhausted),
		errors.Is(err, domain.ErrUpstreamUnavailable),
		errors.Is(err, domain.ErrUpstreamSemantic):
		writeFailure(w, http.StatusOK, usecase.UserMessage(err, msgGenericFailure))
	default:
		LoggerFrom(r).Error("unhandled error", slog.Any("error", err))
		writeFailure(w, http.StatusInternalServerError, msgGenericFailure)
	}
}

// writeNotInitialised reports a dependency that was not wired at startup.
func writeNotInitialised(w http.ResponseWriter) {
	writeFailure(w, http.StatusServiceUnavailable, msgNotInitialised)
}

// decodeBody parses a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return domain.ErrInvalidArgument
	}
	return nil
}
