package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/grocery_shop/pkg/authclient"
	jwthelp "github.com/Skotchmaster/grocery_shop/pkg/jwt"
	"github.com/Skotchmaster/grocery_shop/pkg/tokens"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"

	ctxUserID = "user_id"
	ctxRole   = "role"
)

type AutoRefreshMiddleware struct {
	JWTSecret  []byte
	AuthClient *authclient.Client
}

func NewAutoRefreshMiddleware(secret []byte, authClient *authclient.Client) *AutoRefreshMiddleware {
	return &AutoRefreshMiddleware{
		JWTSecret:  secret,
		AuthClient: authClient,
	}
}

type ValidatorFunc func(claims *tokens.AccessClaims) error

func (m *AutoRefreshMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.authenticate(next, nil, false)
}

func (m *AutoRefreshMiddleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return m.authenticate(next, func(claims *tokens.AccessClaims) error {
		if !IsAdminRole(claims.Role) {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return nil
	}, false)
}

// OptionalAuth lets anonymous requests through as guests but still rejects
// a credential that is present and invalid.
func (m *AutoRefreshMiddleware) OptionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.authenticate(next, nil, true)
}

func (m *AutoRefreshMiddleware) authenticate(next echo.HandlerFunc, validator ValidatorFunc, optional bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		access, fromCookie := accessToken(c)
		if access == "" {
			if optional {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		claims, err := tokens.AccessClaimsFromToken(access, m.JWTSecret)
		if err == nil && claims != nil {
			if validator != nil {
				if validationErr := validator(claims); validationErr != nil {
					return validationErr
				}
			}
			setUserContext(c, claims)
			return next(c)
		}

		if !errors.Is(err, jwt.ErrTokenExpired) || !fromCookie || m.AuthClient == nil {
			if fromCookie {
				clearAuthCookies(c)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}

		refresh, rErr := c.Cookie(refreshCookie)
		if rErr != nil || refresh.Value == "" {
			clearAuthCookies(c)
			return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
		}

		refreshResp, refErr := m.AuthClient.RefreshTokens(c.Request().Context(), refresh.Value, access)
		if refErr != nil {
			clearAuthCookies(c)
			return echo.NewHTTPError(http.StatusUnauthorized, "refresh failed")
		}

		c.SetCookie(jwthelp.CreateCookie(accessCookie, refreshResp.AccessToken, "/", time.Unix(refreshResp.AccessExp, 0)))
		c.SetCookie(jwthelp.CreateCookie(refreshCookie, refreshResp.RefreshToken, "/", time.Unix(refreshResp.RefreshExp, 0)))

		newClaims, pErr := tokens.AccessClaimsFromToken(refreshResp.AccessToken, m.JWTSecret)
		if pErr != nil || newClaims == nil {
			clearAuthCookies(c)
			return echo.NewHTTPError(http.StatusUnauthorized, "new access token invalid")
		}

		if validator != nil {
			if validationErr := validator(newClaims); validationErr != nil {
				return validationErr
			}
		}

		setUserContext(c, newClaims)
		return next(c)
	}
}

// accessToken prefers the session cookie and falls back to a bearer header.
func accessToken(c echo.Context) (string, bool) {
	if ck, err := c.Cookie(accessCookie); err == nil && ck.Value != "" {
		return ck.Value, true
	}
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:]), false
	}
	return "", false
}

func IsAdminRole(role string) bool {
	return strings.EqualFold(role, "admin")
}

func UserID(c echo.Context) string {
	s, _ := c.Get(ctxUserID).(string)
	return s
}

func Role(c echo.Context) string {
	s, _ := c.Get(ctxRole).(string)
	return s
}

func clearAuthCookies(c echo.Context) {
	c.SetCookie(jwthelp.DeleteCookie(accessCookie, "/"))
	c.SetCookie(jwthelp.DeleteCookie(refreshCookie, "/"))
}

func setUserContext(c echo.Context, claims *tokens.AccessClaims) {
	c.Set(ctxUserID, claims.Subject)
	c.Set(ctxRole, claims.Role)
}
