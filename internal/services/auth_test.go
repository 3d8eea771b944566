package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

type mailbox struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (m *mailbox) Dispatch(_ context.Context, msg notify.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
}

func (m *mailbox) last(t *testing.T) notify.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.msgs)
	return m.msgs[len(m.msgs)-1]
}

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) {
	if p == "" {
		return "", errors.New("empty password")
	}
	return "plain:" + p, nil
}

func (plainHasher) Verify(p, d string) bool { return d == "plain:"+p }

type fixedOTP string

func (c fixedOTP) Generate() (string, error) { return string(c), nil }

type fixture struct {
	now    time.Time
	st     *store.MemoryStore
	tokens *token.Service
	cache  *tokencache.Memory
	mail   *mailbox
	svc    *AuthService
}

func newFixture(t *testing.T, opts ...AuthOption) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	f.st = store.NewMemory("General").WithClock(clock)
	f.tokens = token.NewService("test-secret").WithClock(clock)
	f.cache = tokencache.NewMemory().WithClock(clock)
	f.mail = &mailbox{}

	opts = append([]AuthOption{WithClock(clock), WithHasher(plainHasher{})}, opts...)
	f.svc = NewAuthService(f.st, f.tokens, f.cache, f.mail, nil, logging.Nop{}, AuthConfig{
		AccessTokenTTL: time.Hour,
		OTPTTL:         24 * time.Hour,
		PendingTTL:     24 * time.Hour,
		RedirectURL:    "http://app/",
	}, opts...)
	return f
}

func (f *fixture) user(t *testing.T, id string) *models.User {
	t.Helper()
	u, err := f.st.Users().FindOne(context.Background(), store.UserFilter{UUID: id})
	require.NoError(t, err)
	return u
}

func (f *fixture) register(t *testing.T, name string) *Session {
	t.Helper()
	sess, err := f.svc.Register(context.Background(), RegisterInput{
		Username: name, Password: "pw1", Email: name + "@x.com", Phone: "555-" + name,
	})
	require.NoError(t, err)
	return sess
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

func TestAuth_RegisterVerifyLogin(t *testing.T) {
	f := newFixture(t, WithOTPGenerator(fixedOTP("424242")))
	ctx := context.Background()

	sess := f.register(t, "alice")
	assert.False(t, sess.User.Verified)
	assert.NotEmpty(t, sess.Token)

	claims, err := f.tokens.Verify(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.UUID, claims.Subject)
	assert.Equal(t, "alice", claims.Username)

	msg := f.mail.last(t)
	assert.Equal(t, notify.KindVerification, msg.Kind)
	assert.Equal(t, "alice@x.com", msg.To)
	assert.Contains(t, msg.Body, "http://app/auth/verify/registration-"+sess.User.UUID)

	code := *f.user(t, sess.User.UUID).OTP
	assert.Equal(t, "424242", code)
	assert.Contains(t, msg.Body, code)

	otpCtx, err := f.svc.Verify(ctx, code, "registration-"+sess.User.UUID)
	require.NoError(t, err)
	assert.Equal(t, ContextRegistration, otpCtx)

	u := f.user(t, sess.User.UUID)
	assert.True(t, u.Verified)
	assert.Nil(t, u.OTP)

	_, err = f.svc.Verify(ctx, code, "registration-"+sess.User.UUID)
	assertKind(t, err, apperr.KindInvalidCredentials)

	login, err := f.svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.NotEmpty(t, login.Token)

	_, err = f.svc.Login(ctx, "alice", "wrong")
	assertKind(t, err, apperr.KindInvalidCredentials)
	assert.Equal(t, msgInvalidCredentials, apperr.PublicMessage(err))
}

func TestAuth_RegisterConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Password: "pw", Email: "other@x.com", Phone: "1"})
	assertKind(t, err, apperr.KindConflict)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "other", Password: "pw", Email: "ALICE@x.com", Phone: "2"})
	assertKind(t, err, apperr.KindConflict)

	_, total, err := f.st.Users().FindAll(ctx, store.UserFilter{}, store.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestAuth_RegisterSurvivesNotifierFailure(t *testing.T) {
	f := newFixture(t)
	failing := notify.NewDispatcher(failingNotifier{}, logging.Nop{}, time.Second)
	f.svc.notifier = failing

	sess, err := f.svc.Register(context.Background(), RegisterInput{
		Username: "bob", Password: "pw", Email: "bob@x.com", Phone: "9",
	})
	failing.Wait()

	require.NoError(t, err)
	assert.Equal(t, "bob", f.user(t, sess.User.UUID).Username)
}

type failingNotifier struct{}

func (failingNotifier) Send(context.Context, notify.Message) error { return errors.New("smtp down") }

func TestAuth_VerifyExpiredCode(t *testing.T) {
	f := newFixture(t)
	sess := f.register(t, "alice")
	code := *f.user(t, sess.User.UUID).OTP

	f.now = f.now.Add(24*time.Hour + time.Second)

	_, err := f.svc.Verify(context.Background(), code, "registration-"+sess.User.UUID)
	assertKind(t, err, apperr.KindInvalidCredentials)
	assert.False(t, f.user(t, sess.User.UUID).Verified)
}

func TestAuth_VerifyRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.register(t, "alice")

	_, err := f.svc.Verify(ctx, "000000x", "registration-"+sess.User.UUID)
	assertKind(t, err, apperr.KindInvalidCredentials)

	_, err = f.svc.Verify(ctx, "123456", "garbage")
	assertKind(t, err, apperr.KindValidation)

	_, err = f.svc.Verify(ctx, "123456", "registration-00000000-0000-0000-0000-000000000000")
	assertKind(t, err, apperr.KindNotFound)

	code := *f.user(t, sess.User.UUID).OTP
	_, err = f.svc.Verify(ctx, code, "password-reset-"+sess.User.UUID)
	assertKind(t, err, apperr.KindInvalidCredentials)
}

func TestAuth_LoginByUsernameOrEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.register(t, "alice")
	f.svc.cache = tokencache.Disabled{}

	byName, err := f.svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	byEmail, err := f.svc.Login(ctx, "Alice@X.com", "pw1")
	require.NoError(t, err)

	c1, err := f.tokens.Verify(byName.Token)
	require.NoError(t, err)
	c2, err := f.tokens.Verify(byEmail.Token)
	require.NoError(t, err)
	assert.Equal(t, c1.Subject, c2.Subject)
	assert.Equal(t, sess.User.UUID, c1.Subject)

	_, err = f.svc.Login(ctx, "nobody", "pw1")
	assertKind(t, err, apperr.KindNotFound)

	_, err = f.svc.Login(ctx, "alice@", "pw1")
	assertKind(t, err, apperr.KindNotFound)
}

func TestAuth_LoginReusesCachedTokenWithoutExtendingIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.now
	f.register(t, "alice")

	first, err := f.svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	f.now = start.Add(30 * time.Minute)
	second, err := f.svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, first.Token, second.Token)

	claims, err := f.tokens.Verify(second.Token)
	require.NoError(t, err)
	assert.True(t, claims.ExpiresAt.Time.Equal(start.Add(time.Hour)))

	f.now = start.Add(59*time.Minute + 30*time.Second)
	third, err := f.svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, third.Token)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("cache down")
}
func (brokenCache) Set(context.Context, string, string, time.Duration) error {
	return errors.New("cache down")
}
func (brokenCache) Invalidate(context.Context, string) error { return errors.New("cache down") }

func TestAuth_LoginWithBrokenCache(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	f.svc.cache = brokenCache{}

	sess, err := f.svc.Login(context.Background(), "alice", "pw1")
	require.NoError(t, err)
	_, err = f.tokens.Verify(sess.Token)
	assert.NoError(t, err)
}

func TestAuth_LoginIgnoresForeignCachedToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	require.NoError(t, f.cache.Set(ctx, alice.User.UUID, bob.Token, time.Hour))

	sess, err := f.svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	claims, err := f.tokens.Verify(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.User.UUID, claims.Subject)
}

func TestAuth_ForgotAndResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.register(t, "alice")
	ref := "password-reset-" + sess.User.UUID

	require.NoError(t, f.svc.ForgotPassword(ctx, "alice@x.com"))
	msg := f.mail.last(t)
	assert.Equal(t, notify.KindPasswordReset, msg.Kind)
	assert.Contains(t, msg.Body, "http://app/auth/reset-password/"+ref)

	code := *f.user(t, sess.User.UUID).OTP

	otpCtx, err := f.svc.Verify(ctx, code, ref)
	require.NoError(t, err)
	assert.Equal(t, ContextPasswordReset, otpCtx)
	u := f.user(t, sess.User.UUID)
	assert.False(t, u.Verified)
	require.NotNil(t, u.OTP, "checking a reset code must not consume it")

	err = f.svc.ResetPassword(ctx, ResetPasswordInput{Code: code, Ref: "registration-" + sess.User.UUID, Password: "pw2"})
	assertKind(t, err, apperr.KindInvalidCredentials)

	require.NoError(t, f.svc.ResetPassword(ctx, ResetPasswordInput{Code: code, Ref: ref, Password: "pw2"}))
	assert.Nil(t, f.user(t, sess.User.UUID).OTP)

	_, err = f.svc.Login(ctx, "alice", "pw1")
	assertKind(t, err, apperr.KindInvalidCredentials)
	_, err = f.svc.Login(ctx, "alice", "pw2")
	require.NoError(t, err)

	err = f.svc.ResetPassword(ctx, ResetPasswordInput{Code: code, Ref: ref, Password: "pw3"})
	assertKind(t, err, apperr.KindInvalidCredentials)

	err = f.svc.ForgotPassword(ctx, "nobody@x.com")
	assertKind(t, err, apperr.KindNotFound)
}

func TestAuth_RequestOTPReplacesCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.register(t, "alice")
	old := *f.user(t, sess.User.UUID).OTP

	require.NoError(t, f.svc.RequestOTP(ctx, "alice@x.com", ""))
	fresh := *f.user(t, sess.User.UUID).OTP

	if old != fresh {
		_, err := f.svc.Verify(ctx, old, "registration-"+sess.User.UUID)
		assertKind(t, err, apperr.KindInvalidCredentials)
	}
	_, err := f.svc.Verify(ctx, fresh, "registration-"+sess.User.UUID)
	require.NoError(t, err)

	assertKind(t, f.svc.RequestOTP(ctx, "alice@x.com", "login"), apperr.KindValidation)
	assertKind(t, f.svc.RequestOTP(ctx, "nobody@x.com", ContextRegistration), apperr.KindNotFound)
}

func TestAuth_ChangePassword(t *testing.T) {
	f := newFixture(t, WithHasher(utils.NewBcryptHasher(4)))
	ctx := context.Background()
	sess := f.register(t, "alice")
	oldHash := f.user(t, sess.User.UUID).Password

	_, err := f.svc.ChangePassword(ctx, sess.User.UUID, "nope", "pw2")
	assertKind(t, err, apperr.KindInvalidCredentials)

	_, err = f.svc.ChangePassword(ctx, sess.User.UUID, "pw1", "pw1")
	assertKind(t, err, apperr.KindValidation)

	changed, err := f.svc.ChangePassword(ctx, sess.User.UUID, "pw1", "pw2")
	require.NoError(t, err)
	assert.NotEqual(t, sess.Token, changed.Token)

	newHash := f.user(t, sess.User.UUID).Password
	h := utils.NewBcryptHasher(4)
	assert.False(t, h.Verify("pw1", newHash))
	assert.True(t, h.Verify("pw2", newHash))
	assert.True(t, h.Verify("pw1", oldHash))

	login, err := f.svc.Login(ctx, "alice", "pw2")
	require.NoError(t, err)
	assert.Equal(t, changed.Token, login.Token)
}

func TestAuth_ChangeEmailPendingUntilConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	f.register(t, "bob")

	err := f.svc.ChangeEmail(ctx, alice.User.UUID, "bob@x.com", "new@x.com")
	assertKind(t, err, apperr.KindForbidden)

	err = f.svc.ChangeEmail(ctx, alice.User.UUID, "alice@x.com", "bob@x.com")
	assertKind(t, err, apperr.KindConflict)

	require.NoError(t, f.svc.ChangeEmail(ctx, alice.User.UUID, "alice@x.com", "New@x.com"))

	msg := f.mail.last(t)
	assert.Equal(t, notify.KindChangeConfirm, msg.Kind)
	assert.Equal(t, "new@x.com", msg.To)

	u := f.user(t, alice.User.UUID)
	assert.Equal(t, "alice@x.com", u.Email)
	require.NotNil(t, u.Pending.Token)
	assert.Contains(t, msg.Body, "http://app/auth/confirm-change/"+*u.Pending.Token)

	confirmed, err := f.svc.ConfirmChange(ctx, *u.Pending.Token)
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", confirmed.Email)
	assert.Equal(t, "new@x.com", f.user(t, alice.User.UUID).Email)

	_, err = f.svc.ConfirmChange(ctx, *u.Pending.Token)
	assertKind(t, err, apperr.KindNotFound)
}

func TestAuth_ConfirmChangeExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	require.NoError(t, f.svc.ChangePhone(ctx, alice.User.UUID, "555-alice", "777"))
	tok := *f.user(t, alice.User.UUID).Pending.Token
	assert.Equal(t, "alice@x.com", f.mail.last(t).To)

	f.now = f.now.Add(25 * time.Hour)
	_, err := f.svc.ConfirmChange(ctx, tok)
	assertKind(t, err, apperr.KindInvalidCredentials)
	assert.Equal(t, "555-alice", f.user(t, alice.User.UUID).Phone)
}

func TestAuth_ConfirmChangeLosesRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	require.NoError(t, f.svc.ChangeUsername(ctx, alice.User.UUID, "alice", "carol"))
	tok := *f.user(t, alice.User.UUID).Pending.Token
	f.register(t, "carol")

	_, err := f.svc.ConfirmChange(ctx, tok)
	assertKind(t, err, apperr.KindConflict)
}

func TestAuth_UsernameChangeDropsCachedToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	before, err := f.svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	require.NoError(t, f.svc.ChangeUsername(ctx, alice.User.UUID, "alice", "alicia"))
	_, err = f.svc.ConfirmChange(ctx, *f.user(t, alice.User.UUID).Pending.Token)
	require.NoError(t, err)

	after, err := f.svc.Login(ctx, "alicia", "pw1")
	require.NoError(t, err)
	assert.NotEqual(t, before.Token, after.Token)

	claims, err := f.tokens.Verify(after.Token)
	require.NoError(t, err)
	assert.Equal(t, "alicia", claims.Username)
}

func TestAuth_ChangeRejectsSameValue(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	err := f.svc.ChangeUsername(context.Background(), alice.User.UUID, "alice", "alice")
	assertKind(t, err, apperr.KindValidation)
}

func TestAuth_DeleteAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	require.NoError(t, f.svc.DeleteAccount(ctx, alice.User.UUID))
	_, ok, err := f.cache.Get(ctx, alice.User.UUID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.Login(ctx, "alice", "pw1")
	assertKind(t, err, apperr.KindNotFound)

	assert.NoError(t, f.svc.DeleteAccount(ctx, alice.User.UUID))
}

func TestAuth_KeepLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	sess, err := f.svc.KeepLogin(ctx, alice.User.UUID)
	require.NoError(t, err)
	assert.Equal(t, alice.Token, sess.Token)
	assert.Equal(t, "alice", sess.User.Username)

	_, err = f.svc.KeepLogin(ctx, "")
	assertKind(t, err, apperr.KindUnauthorized)
}

type fakeUploader struct {
	folder string
	url    string
}

func (u *fakeUploader) Upload(_ context.Context, folder, filename, _ string, _ []byte) (string, error) {
	u.folder = folder
	return u.url + "/" + filename, nil
}

func TestAuth_ProfilePicture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	_, err := f.svc.ProfilePicture(ctx, alice.User.UUID)
	assertKind(t, err, apperr.KindNotFound)

	_, err = f.svc.ChangeProfilePicture(ctx, alice.User.UUID, upload.Image{Filename: "me.png", Data: []byte("x")})
	assertKind(t, err, apperr.KindValidation)

	up := &fakeUploader{url: "https://cdn"}
	f.svc.uploader = up

	_, err = f.svc.ChangeProfilePicture(ctx, alice.User.UUID, upload.Image{Filename: "me.bmp", Data: []byte("x")})
	assertKind(t, err, apperr.KindValidation)

	u, err := f.svc.ChangeProfilePicture(ctx, alice.User.UUID, upload.Image{Filename: "me.png", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, upload.FolderProfiles, up.folder)
	assert.Equal(t, "https://cdn/me.png", *u.ImgProfile)

	url, err := f.svc.ProfilePicture(ctx, alice.User.UUID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/me.png", url)
}
