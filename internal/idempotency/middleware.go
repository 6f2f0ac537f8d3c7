package idempotency

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/grocery_shop/pkg/logging"
)

const HeaderKey = "Idempotency-Key"

type recorder struct {
	http.ResponseWriter
	buf bytes.Buffer
}

func (r *recorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

// Middleware replays the stored 2xx response for a repeated Idempotency-Key.
// Keys are scoped by route and caller. Requests without the header pass
// through; a nil keeper disables the middleware.
func Middleware(k Keeper, scope func(echo.Context) string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if k == nil {
			return next
		}
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(HeaderKey)
			if raw == "" {
				return next(c)
			}

			ctx := c.Request().Context()
			l := logging.FromContext(ctx).With("idempotency_key", raw)
			key := c.Request().Method + " " + c.Path() + ":" + scope(c) + ":" + raw

			stored, err := k.Begin(ctx, key)
			switch {
			case errors.Is(err, ErrInFlight):
				return echo.NewHTTPError(http.StatusConflict, "request with this idempotency key is in progress")
			case err != nil:
				l.Warn("idempotency_unavailable", "error", err)
				return next(c)
			case stored != nil:
				l.Info("idempotent_replay", "status", stored.Status)
				return c.Blob(stored.Status, stored.ContentType, stored.Body)
			}

			rec := &recorder{ResponseWriter: c.Response().Writer}
			c.Response().Writer = rec

			herr := next(c)

			// the request may already be cancelled; the key bookkeeping must still run
			bg := context.WithoutCancel(ctx)
			status := c.Response().Status
			if herr != nil || status < 200 || status > 299 {
				if err := k.Release(bg, key); err != nil {
					l.Warn("idempotency_release_failed", "error", err)
				}
				return herr
			}

			err = k.Complete(bg, key, Response{
				Status:      status,
				ContentType: c.Response().Header().Get(echo.HeaderContentType),
				Body:        rec.buf.Bytes(),
			})
			if err != nil {
				l.Warn("idempotency_store_failed", "error", err)
			}
			return nil
		}
	}
}
