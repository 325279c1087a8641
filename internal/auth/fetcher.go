package auth

import (
	"context"

	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/EcoWatch/EcoWatch-Backend/internal/utils"
)

// SessionInfo resolves session cookies for middleware.SessionMiddleware.
type SessionInfo struct {
	Store storage.Store
}

func (si SessionInfo) FindSessionByID(ctx context.Context, id string) (utils.SessionData, error) {
	session, err := si.Store.FindSession(ctx, id)
	if err != nil {
		return utils.SessionData{}, err
	}

	user, err := si.Store.GetUser(ctx, session.UserID)
	if err != nil {
		return utils.SessionData{}, err
	}

	return utils.SessionData{
		UserID:    session.UserID,
		Role:      user.Role,
		ExpiresAt: session.ExpiresAt,
	}, nil
}
