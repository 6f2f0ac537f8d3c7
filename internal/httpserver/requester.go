package httpserver

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/grocery_shop/internal/service"
	middleware "github.com/Skotchmaster/grocery_shop/pkg/middleware/auth"
)

func requester(c echo.Context) service.Requester {
	return service.Requester{
		UserID: middleware.UserID(c),
		Admin:  middleware.IsAdminRole(middleware.Role(c)),
	}
}

// idempotencyScope keys stored responses by caller. Guests have no identity,
// so their scope is the digest of the request body: a replay needs the same
// key and the same payload, guest email included.
func idempotencyScope(c echo.Context) string {
	if id := middleware.UserID(c); id != "" {
		return id
	}

	req := c.Request()
	if req.Body == nil {
		return "guest"
	}
	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return "guest"
	}
	sum := sha256.Sum256(body)
	return "guest:" + hex.EncodeToString(sum[:])
}
