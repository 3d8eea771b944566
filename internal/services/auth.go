// Package services holds the account and blog flows. Handlers call into
// these; nothing here knows about HTTP.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"blogauth/internal/apperr"
	"blogauth/internal/logging"
	"blogauth/internal/models"
	"blogauth/internal/notify"
	"blogauth/internal/store"
	"blogauth/internal/token"
	"blogauth/internal/tokencache"
	"blogauth/internal/upload"
	"blogauth/internal/utils"
)

// OTP contexts carried in verification links.
const (
	ContextRegistration  = "registration"
	ContextPasswordReset = "password-reset"
)

const (
	pendingTokenBytes = 32
	// cached tokens closer than this to expiry are replaced, not reused
	minReuseValidity = time.Minute
)

// Dispatcher queues a notification without waiting for delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg notify.Message)
}

type AuthConfig struct {
	AccessTokenTTL time.Duration
	OTPTTL         time.Duration
	PendingTTL     time.Duration
	// RedirectURL is the frontend base for links in emails.
	RedirectURL string
}

type AuthService struct {
	store    store.Store
	tokens   *token.Service
	cache    tokencache.Cache
	notifier Dispatcher
	uploader upload.Uploader
	hasher   utils.Hasher
	otp      utils.OTPGenerator
	logger   logging.Logger
	cfg      AuthConfig
	now      func() time.Time
}

type AuthOption func(*AuthService)

func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

func WithOTPGenerator(g utils.OTPGenerator) AuthOption {
	return func(s *AuthService) { s.otp = g }
}

func WithHasher(h utils.Hasher) AuthOption {
	return func(s *AuthService) { s.hasher = h }
}

func NewAuthService(
	st store.Store,
	tokens *token.Service,
	cache tokencache.Cache,
	notifier Dispatcher,
	uploader upload.Uploader,
	logger logging.Logger,
	cfg AuthConfig,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		store:    st,
		tokens:   tokens,
		cache:    cache,
		notifier: notifier,
		uploader: uploader,
		hasher:   utils.NewBcryptHasher(0),
		otp:      utils.NumericOTP{Digits: utils.OTPLength},
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
	if s.cache == nil {
		s.cache = tokencache.Disabled{}
	}
	if s.uploader == nil {
		s.uploader = upload.Disabled{}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Session is a user together with a bearer token for them.
type Session struct {
	User  *models.User
	Token string
}

type RegisterInput struct {
	Username string
	Password string
	Email    string
	Phone    string
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = normalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}
	code, err := s.otp.Generate()
	if err != nil {
		return nil, apperr.Internal("generate otp", err)
	}

	expires := s.now().Add(s.cfg.OTPTTL)
	otpCtx := ContextRegistration
	user := &models.User{
		UUID:         uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		Phone:        in.Phone,
		Password:     hash,
		OTP:          &code,
		OTPContext:   &otpCtx,
		OTPExpiresAt: &expires,
	}

	err = s.store.WithinTx(ctx, func(tx store.Stores) error {
		_, err := tx.Users().FindOne(ctx, store.UserFilter{
			Username: in.Username, Email: in.Email, Phone: in.Phone, Any: true,
		})
		switch {
		case err == nil:
			return apperr.Conflict(msgUserExists)
		case !errors.Is(err, store.ErrNotFound):
			return fromStore(err, msgUserNotFound)
		}
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Conflict(msgUserExists)
			}
			return fromStore(err, msgUserNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tok, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	s.sendCode(ctx, user, code, ContextRegistration)
	s.logger.Info(ctx, "user registered", "user", user.UUID)
	return &Session{User: user, Token: tok}, nil
}

// Login accepts a username or an email as identifier.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*Session, error) {
	f := store.UserFilter{Username: strings.TrimSpace(identifier)}
	if utils.IsEmail(identifier) {
		f = store.UserFilter{Email: normalizeEmail(identifier)}
	}
	user, err := s.store.Users().FindOne(ctx, f)
	if err != nil {
		return nil, fromStore(err, msgUserNotFound)
	}
	if !s.hasher.Verify(password, user.Password) {
		return nil, apperr.InvalidCredentials(msgInvalidCredentials)
	}

	tok, err := s.sessionToken(ctx, user)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: tok}, nil
}

// KeepLogin returns the caller's current profile and a usable token.
func (s *AuthService) KeepLogin(ctx context.Context, callerUUID string) (*Session, error) {
	user, err := s.userByUUID(ctx, s.store, callerUUID)
	if err != nil {
		return nil, err
	}
	tok, err := s.sessionToken(ctx, user)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: tok}, nil
}

// Verify checks code against the user named by ref ("<context>-<uuid>").
// In the registration context the code is consumed and the account marked
// verified. In the password-reset context the code is only checked; it is
// consumed by ResetPassword.
func (s *AuthService) Verify(ctx context.Context, code, ref string) (string, error) {
	otpCtx, id, err := splitRef(ref)
	if err != nil {
		return "", err
	}

	err = s.store.WithinTx(ctx, func(tx store.Stores) error {
		user, err := s.userByUUID(ctx, tx, id)
		if err != nil {
			return err
		}
		if !user.OTPValid(code, otpCtx, s.now()) {
			return apperr.InvalidCredentials(msgInvalidCode)
		}
		if otpCtx != ContextRegistration {
			return nil
		}
		verified := true
		return fromStore(tx.Users().Update(ctx, store.UserFilter{ID: user.ID}, store.UserChanges{
			Verified: &verified,
			ClearOTP: true,
		}), msgUserNotFound)
	})
	if err != nil {
		return "", err
	}
	return otpCtx, nil
}

// RequestOTP issues a fresh code in the given context and mails it.
func (s *AuthService) RequestOTP(ctx context.Context, email, otpCtx string) error {
	if otpCtx == "" {
		otpCtx = ContextRegistration
	}
	if !knownContext(otpCtx) {
		return apperr.Validation("unknown verification context")
	}
	return s.issueOTP(ctx, email, otpCtx)
}

func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	return s.issueOTP(ctx, email, ContextPasswordReset)
}

type ResetPasswordInput struct {
	Code     string
	Ref      string
	Password string
}

func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	otpCtx, id, err := splitRef(in.Ref)
	if err != nil {
		return err
	}
	if otpCtx != ContextPasswordReset {
		return apperr.InvalidCredentials(msgInvalidCode)
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return apperr.Internal("hash password", err)
	}

	var user *models.User
	err = s.store.WithinTx(ctx, func(tx store.Stores) error {
		user, err = s.userByUUID(ctx, tx, id)
		if err != nil {
			return err
		}
		if !user.OTPValid(in.Code, ContextPasswordReset, s.now()) {
			return apperr.InvalidCredentials(msgInvalidCode)
		}
		return fromStore(tx.Users().Update(ctx, store.UserFilter{ID: user.ID}, store.UserChanges{
			Password: &hash,
			ClearOTP: true,
		}), msgUserNotFound)
	})
	if err != nil {
		return err
	}

	s.forget(ctx, user.UUID)
	s.logger.Info(ctx, "password reset", "user", user.UUID)
	return nil
}

// ChangePassword replaces the hash once current matches and returns a new
// session; tokens cached for the old password are dropped.
func (s *AuthService) ChangePassword(ctx context.Context, callerUUID, current, next string) (*Session, error) {
	if current == next {
		return nil, apperr.Validation("new password must differ from the current one")
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}

	var user *models.User
	err = s.store.WithinTx(ctx, func(tx store.Stores) error {
		user, err = s.userByUUID(ctx, tx, callerUUID)
		if err != nil {
			return err
		}
		if !s.hasher.Verify(current, user.Password) {
			return apperr.InvalidCredentials("current password is incorrect")
		}
		return fromStore(tx.Users().Update(ctx, store.UserFilter{ID: user.ID}, store.UserChanges{
			Password: &hash,
		}), msgUserNotFound)
	})
	if err != nil {
		return nil, err
	}
	user.Password = hash

	s.forget(ctx, user.UUID)
	tok, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: tok}, nil
}

func (s *AuthService) ChangeUsername(ctx context.Context, callerUUID, current, next string) error {
	return s.requestChange(ctx, callerUUID, models.FieldUsername, strings.TrimSpace(current), strings.TrimSpace(next))
}

func (s *AuthService) ChangeEmail(ctx context.Context, callerUUID, current, next string) error {
	return s.requestChange(ctx, callerUUID, models.FieldEmail, normalizeEmail(current), normalizeEmail(next))
}

func (s *AuthService) ChangePhone(ctx context.Context, callerUUID, current, next string) error {
	return s.requestChange(ctx, callerUUID, models.FieldPhone, strings.TrimSpace(current), strings.TrimSpace(next))
}

// requestChange stores a pending rotation of field and mails a
// confirmation link. Email changes are confirmed from the new address.
func (s *AuthService) requestChange(ctx context.Context, callerUUID, field, current, next string) error {
	if next == "" {
		return apperr.Validation("new " + field + " is required")
	}
	if current == next {
		return apperr.Validation("new " + field + " must differ from the current one")
	}
	tok, err := utils.NewRandomToken(pendingTokenBytes)
	if err != nil {
		return apperr.Internal("generate confirmation token", err)
	}

	var user *models.User
	err = s.store.WithinTx(ctx, func(tx store.Stores) error {
		user, err = s.userByUUID(ctx, tx, callerUUID)
		if err != nil {
			return err
		}
		if fieldValue(user, field) != current {
			return apperr.Forbidden("you can only change your own " + field)
		}
		if err := s.ensureFree(ctx, tx, field, next); err != nil {
			return err
		}
		return fromStore(tx.Users().Update(ctx, store.UserFilter{ID: user.ID}, store.UserChanges{
			Pending: &store.PendingState{
				Field:     field,
				Value:     next,
				Token:     tok,
				ExpiresAt: s.now().Add(s.cfg.PendingTTL),
			},
		}), msgUserNotFound)
	})
	if err != nil {
		return err
	}

	to := user.Email
	if field == models.FieldEmail {
		to = next
	}
	msg, err := notify.ChangeConfirmationMessage(to, user.Username, field, next, s.link("/auth/confirm-change/"+tok), s.cfg.PendingTTL)
	if err != nil {
		s.logger.Error(ctx, "render change confirmation", "user", user.UUID, "err", err)
		return nil
	}
	s.notifier.Dispatch(ctx, msg)
	return nil
}

// ConfirmChange applies the pending rotation identified by tok.
func (s *AuthService) ConfirmChange(ctx context.Context, tok string) (*models.User, error) {
	if tok == "" {
		return nil, apperr.Validation("confirmation token is required")
	}

	var user *models.User
	err := s.store.WithinTx(ctx, func(tx store.Stores) error {
		var err error
		user, err = tx.Users().FindOne(ctx, store.UserFilter{PendingToken: tok})
		if err != nil {
			return fromStore(err, "confirmation link is invalid")
		}
		if !user.PendingValid(s.now()) {
			return apperr.InvalidCredentials("confirmation link has expired")
		}
		field, value := *user.Pending.Field, *user.Pending.Value
		if err := s.ensureFree(ctx, tx, field, value); err != nil {
			return err
		}

		ch := store.UserChanges{ClearPending: true}
		switch field {
		case models.FieldUsername:
			ch.Username = &value
			user.Username = value
		case models.FieldEmail:
			ch.Email = &value
			user.Email = value
		case models.FieldPhone:
			ch.Phone = &value
			user.Phone = value
		default:
			return apperr.Internal("unknown pending field "+field, nil)
		}
		user.Pending = models.PendingChange{}
		return fromStore(tx.Users().Update(ctx, store.UserFilter{ID: user.ID}, ch), msgUserNotFound)
	})
	if err != nil {
		return nil, err
	}

	// cached tokens embed the username
	s.forget(ctx, user.UUID)
	s.logger.Info(ctx, "contact change confirmed", "user", user.UUID)
	return user, nil
}

// DeleteAccount removes the caller. A caller that is already gone still
// gets success.
func (s *AuthService) DeleteAccount(ctx context.Context, callerUUID string) error {
	n, err := s.store.Users().Destroy(ctx, store.UserFilter{UUID: callerUUID})
	if err != nil {
		return fromStore(err, msgUserNotFound)
	}
	s.forget(ctx, callerUUID)
	if n > 0 {
		s.logger.Info(ctx, "account deleted", "user", callerUUID)
	}
	return nil
}

func (s *AuthService) ChangeProfilePicture(ctx context.Context, callerUUID string, img upload.Image) (*models.User, error) {
	contentType, err := upload.Validate(img)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	user, err := s.userByUUID(ctx, s.store, callerUUID)
	if err != nil {
		return nil, err
	}

	url, err := s.uploader.Upload(ctx, upload.FolderProfiles, img.Filename, contentType, img.Data)
	if err != nil {
		if errors.Is(err, upload.ErrDisabled) {
			return nil, apperr.Validation("image uploads are not enabled")
		}
		return nil, apperr.Internal("upload profile picture", err)
	}

	if err := s.store.Users().Update(ctx, store.UserFilter{ID: user.ID}, store.UserChanges{ImgProfile: &url}); err != nil {
		return nil, fromStore(err, msgUserNotFound)
	}
	user.ImgProfile = &url
	return user, nil
}

func (s *AuthService) ProfilePicture(ctx context.Context, callerUUID string) (string, error) {
	user, err := s.userByUUID(ctx, s.store, callerUUID)
	if err != nil {
		return "", err
	}
	if user.ImgProfile == nil || *user.ImgProfile == "" {
		return "", apperr.NotFound("no profile picture")
	}
	return *user.ImgProfile, nil
}

func (s *AuthService) issueOTP(ctx context.Context, email, otpCtx string) error {
	code, err := s.otp.Generate()
	if err != nil {
		return apperr.Internal("generate otp", err)
	}

	var user *models.User
	err = s.store.WithinTx(ctx, func(tx store.Stores) error {
		user, err = tx.Users().FindOne(ctx, store.UserFilter{Email: normalizeEmail(email)})
		if err != nil {
			return fromStore(err, msgUserNotFound)
		}
		return fromStore(tx.Users().Update(ctx, store.UserFilter{ID: user.ID}, store.UserChanges{
			OTP: &store.OTPState{Code: code, Context: otpCtx, ExpiresAt: s.now().Add(s.cfg.OTPTTL)},
		}), msgUserNotFound)
	})
	if err != nil {
		return err
	}
	s.sendCode(ctx, user, code, otpCtx)
	return nil
}

func (s *AuthService) sendCode(ctx context.Context, user *models.User, code, otpCtx string) {
	ref := utils.TargetRef(otpCtx, user.UUID)

	var (
		msg notify.Message
		err error
	)
	if otpCtx == ContextPasswordReset {
		msg, err = notify.PasswordResetMessage(user.Email, user.Username, code, s.link("/auth/reset-password/"+ref), s.cfg.OTPTTL)
	} else {
		msg, err = notify.VerificationMessage(user.Email, user.Username, code, s.link("/auth/verify/"+ref), s.cfg.OTPTTL)
	}
	if err != nil {
		s.logger.Error(ctx, "render otp email", "user", user.UUID, "err", err)
		return
	}
	s.notifier.Dispatch(ctx, msg)
}

func (s *AuthService) link(path string) string {
	return strings.TrimRight(s.cfg.RedirectURL, "/") + path
}

// ensureFree fails with Conflict when another user already holds value.
func (s *AuthService) ensureFree(ctx context.Context, tx store.Stores, field, value string) error {
	var f store.UserFilter
	switch field {
	case models.FieldUsername:
		f.Username = value
	case models.FieldEmail:
		f.Email = value
	case models.FieldPhone:
		f.Phone = value
	}
	_, err := tx.Users().FindOne(ctx, f)
	switch {
	case err == nil:
		return apperr.Conflict(field + " already taken")
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return fromStore(err, msgUserNotFound)
	}
}

func (s *AuthService) userByUUID(ctx context.Context, st store.Stores, id string) (*models.User, error) {
	if id == "" {
		return nil, apperr.Unauthorized("missing user identity")
	}
	user, err := st.Users().FindOne(ctx, store.UserFilter{UUID: id})
	if err != nil {
		return nil, fromStore(err, msgUserNotFound)
	}
	return user, nil
}

// sessionToken reuses a cached token for user when it still verifies for
// the same subject and username, and issues a new one otherwise.
func (s *AuthService) sessionToken(ctx context.Context, user *models.User) (string, error) {
	cached, ok, err := s.cache.Get(ctx, user.UUID)
	if err != nil {
		s.logger.Warn(ctx, "token cache get", "user", user.UUID, "err", err)
	}
	if ok {
		claims, err := s.tokens.Verify(cached)
		if err == nil && claims.Subject == user.UUID && claims.Username == user.Username &&
			s.tokens.Remaining(claims) >= minReuseValidity {
			return cached, nil
		}
		s.forget(ctx, user.UUID)
	}
	return s.issue(ctx, user)
}

// issue signs a new token and caches it for its full lifetime.
func (s *AuthService) issue(ctx context.Context, user *models.User) (string, error) {
	tok, err := s.tokens.Issue(user.UUID, user.Username, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", apperr.Internal("issue token", err)
	}
	if err := s.cache.Set(ctx, user.UUID, tok, s.cfg.AccessTokenTTL); err != nil {
		s.logger.Warn(ctx, "token cache set", "user", user.UUID, "err", err)
	}
	return tok, nil
}

func (s *AuthService) forget(ctx context.Context, userUUID string) {
	if err := s.cache.Invalidate(ctx, userUUID); err != nil {
		s.logger.Warn(ctx, "token cache invalidate", "user", userUUID, "err", err)
	}
}

func splitRef(ref string) (string, string, error) {
	otpCtx, id, err := utils.SplitTargetRef(ref)
	if err != nil || !knownContext(otpCtx) {
		return "", "", apperr.Validation("invalid verification link")
	}
	return otpCtx, id, nil
}

func knownContext(c string) bool {
	return c == ContextRegistration || c == ContextPasswordReset
}

func fieldValue(u *models.User, field string) string {
	switch field {
	case models.FieldUsername:
		return u.Username
	case models.FieldEmail:
		return u.Email
	case models.FieldPhone:
		return u.Phone
	}
	return ""
}
