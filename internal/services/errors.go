package services

import (
	"errors"

	"blogauth/internal/apperr"
	"blogauth/internal/store"
)

const (
	msgUserExists         = "user already exists"
	msgUserNotFound       = "user does not exist"
	msgInvalidCredentials = "invalid credentials"
	msgInvalidCode        = "invalid or expired code"
	msgArticleNotFound    = "article does not exist"
)

// fromStore turns store sentinels into client-facing errors. notFound is
// the message used when the lookup matched nothing.
func fromStore(err error, notFound string) error {
	var ae *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(notFound)
	case errors.Is(err, store.ErrDuplicate):
		return apperr.Conflict("value already taken")
	case errors.As(err, &ae):
		return err
	default:
		return apperr.Store(err)
	}
}
