package utils

import (
	"context"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/google/uuid"
)

type contextKey string

const (
	ContextUserIDKey contextKey = "userID"
	ContextRoleKey   contextKey = "role"
)

// SessionData is what the session middleware needs to authorize a request.
type SessionData struct {
	UserID    string
	Role      models.Role
	ExpiresAt time.Time
}

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID := ctx.Value(ContextUserIDKey)
	userIDStr, ok := userID.(string)
	return userIDStr, ok && userIDStr != ""
}

func GetRoleFromContext(ctx context.Context) (models.Role, bool) {
	role, ok := ctx.Value(ContextRoleKey).(models.Role)
	return role, ok
}

// WithSession stores the caller's identity on the context.
func WithSession(ctx context.Context, s SessionData) context.Context {
	ctx = context.WithValue(ctx, ContextUserIDKey, s.UserID)
	return context.WithValue(ctx, ContextRoleKey, s.Role)
}

func GenerateUUID() string {
	return uuid.NewString()
}
