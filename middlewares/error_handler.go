package middlewares

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	serviceErrors "github.com/tink3rlabs/targeting/errors"
	"github.com/tink3rlabs/targeting/grammar"
	"github.com/tink3rlabs/targeting/storage"
	"github.com/tink3rlabs/targeting/types"
)

type ErrorHandler struct{}

func (e *ErrorHandler) Wrap(handler func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var notFoundError *serviceErrors.NotFound
		var badRequestError *serviceErrors.BadRequest
		var conflictError *serviceErrors.Conflict
		var serviceUnavailable *serviceErrors.ServiceUnavailable
		var forbiddenError *serviceErrors.Forbidden
		var unauthorizedError *serviceErrors.Unauthorized
		var syntaxError *grammar.SyntaxError
		var structuralError *grammar.StructuralError
		var startRuleError *grammar.UnknownStartRuleError

		err := handler(w, r)

		switch {
		case err == nil:
			return
		case errors.As(err, &notFoundError), errors.Is(err, storage.ErrNotFound):
			respond(w, r, http.StatusNotFound, err.Error(), nil)
		case errors.As(err, &syntaxError):
			respond(w, r, http.StatusBadRequest, err.Error(), []string{
				fmt.Sprintf("offset: %d", syntaxError.Offset),
				fmt.Sprintf("line: %d", syntaxError.Line),
				fmt.Sprintf("column: %d", syntaxError.Column),
			})
		case errors.As(err, &structuralError), errors.As(err, &startRuleError):
			respond(w, r, http.StatusBadRequest, err.Error(), nil)
		case errors.As(err, &badRequestError):
			respond(w, r, http.StatusBadRequest, err.Error(), badRequestError.Details)
		case errors.As(err, &conflictError):
			respond(w, r, http.StatusConflict, err.Error(), nil)
		case errors.As(err, &serviceUnavailable):
			respond(w, r, http.StatusServiceUnavailable, err.Error(), nil)
		case errors.As(err, &forbiddenError):
			respond(w, r, http.StatusForbidden, err.Error(), nil)
		case errors.As(err, &unauthorizedError):
			respond(w, r, http.StatusUnauthorized, err.Error(), nil)
		default:
			slog.Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
			respond(w, r, http.StatusInternalServerError, "encountered an unexpected server error: "+err.Error(), nil)
		}
	}
}

func respond(w http.ResponseWriter, r *http.Request, status int, message string, details []string) {
	render.Status(r, status)
	render.JSON(w, r, types.ErrorResponse{
		Status:  http.StatusText(status),
		Error:   message,
		Details: details,
	})
}
