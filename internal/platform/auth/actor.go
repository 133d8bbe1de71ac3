package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mdhs/ehr/internal/platform/apperr"
)

const (
	RoleAdmin  = "admin"
	RoleDoctor = "doctor"
)

// ValidRoles is the closed set of account roles.
var ValidRoles = map[string]bool{
	RoleAdmin:  true,
	RoleDoctor: true,
}

// Actor is the authenticated caller. Services receive it explicitly.
type Actor struct {
	UserID    uuid.UUID
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

func (a Actor) Is(role string) bool {
	return a.Role == role
}

type contextKey string

const actorKey contextKey = "actor"

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}

// ActorFrom extracts the actor set by JWTMiddleware. Handlers call it first and
// pass the result down to the service layer.
func ActorFrom(c echo.Context) (Actor, error) {
	a, ok := ActorFromContext(c.Request().Context())
	if !ok || a.UserID == uuid.Nil {
		return Actor{}, apperr.ErrUnauthorized
	}
	return a, nil
}
