package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// ProblemExtender lets domain errors attach RFC7807 extension members.
type ProblemExtender interface {
	ProblemFields() map[string]any
}

var titles = map[int]string{
	http.StatusBadRequest:          "Validation Failed",
	http.StatusNotFound:            "Not Found",
	http.StatusConflict:            "Conflict",
	http.StatusUnprocessableEntity: "Insufficient Stock",
	http.StatusUnauthorized:        "Unauthorized",
	http.StatusForbidden:           "Forbidden",
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Internal errors are logged and returned without detail.
func RespondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed",
				slog.String("path", r.URL.Path),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.Any("error", err))
		}
		Problem(w, status, "Internal Error", "")
		return
	}
	p := ProblemDetail{Title: titles[status], Status: status, Detail: err.Error()}
	var ext ProblemExtender
	if errors.As(err, &ext) {
		p.Extensions = ext.ProblemFields()
	}
	WriteProblem(w, p)
}
