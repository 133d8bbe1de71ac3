package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mdhs/ehr/internal/platform/apperr"
)

type JWTConfig struct {
	Tokens      *TokenIssuer
	Revocations RevocationStore
	Skipper     func(c echo.Context) bool
	Logger      zerolog.Logger
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// JWTMiddleware verifies the bearer token, rejects revoked tokens and stores
// the resulting Actor on the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, ok := BearerToken(c.Request())
			if !ok {
				return apperr.HTTPError(apperr.ErrUnauthorized)
			}
			claims, err := cfg.Tokens.Parse(tokenStr)
			if err != nil {
				return apperr.HTTPError(apperr.ErrUnauthorized)
			}
			actor, err := claims.Actor()
			if err != nil || !ValidRoles[actor.Role] {
				return apperr.HTTPError(apperr.ErrUnauthorized)
			}

			if cfg.Revocations != nil {
				revoked, err := cfg.Revocations.IsRevoked(c.Request().Context(), actor.TokenID)
				if err != nil {
					cfg.Logger.Error().Err(err).Msg("revocation lookup failed")
					return apperr.HTTPError(err)
				}
				if revoked {
					return apperr.HTTPError(apperr.ErrUnauthorized)
				}
			}

			c.SetRequest(c.Request().WithContext(WithActor(c.Request().Context(), actor)))
			return next(c)
		}
	}
}

// DevAuthMiddleware lets requests without an Authorization header act as
// fallback. Requests that do carry a token go through verify as usual.
func DevAuthMiddleware(verify echo.MiddlewareFunc, fallback Actor) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		verified := verify(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" {
				return verified(c)
			}
			c.SetRequest(c.Request().WithContext(WithActor(c.Request().Context(), fallback)))
			return next(c)
		}
	}
}
