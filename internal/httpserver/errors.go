package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/grocery_shop/internal/service"
)

// fail maps a service error onto an HTTP error and logs it under event.
// Internal and upstream details stay in the log.
func fail(l *slog.Logger, event string, err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		l.Warn(event, "status", http.StatusBadRequest, "reason", verr.Error(), "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, service.ErrValidation):
		return clientError(l, event, http.StatusBadRequest, reason(err, service.ErrValidation), err)
	case errors.Is(err, service.ErrConflict):
		return clientError(l, event, http.StatusBadRequest, reason(err, service.ErrConflict), err)
	case errors.Is(err, service.ErrNotFound):
		return clientError(l, event, http.StatusNotFound, "not found", err)
	case errors.Is(err, service.ErrUnauthorized):
		return clientError(l, event, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, service.ErrForbidden):
		return clientError(l, event, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, service.ErrUpstream):
		l.Error(event, "status", http.StatusInternalServerError, "reason", "payment provider error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "payment provider error")
	}
	l.Error(event, "status", http.StatusInternalServerError, "reason", "internal error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func clientError(l *slog.Logger, event string, status int, msg string, err error) error {
	l.Warn(event, "status", status, "reason", msg, "error", err)
	return echo.NewHTTPError(status, msg)
}

func badRequest(l *slog.Logger, event, msg string, err error) error {
	return clientError(l, event, http.StatusBadRequest, msg, err)
}

// reason strips the sentinel prefix from a wrapped service error.
func reason(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}
