package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"blogauth/internal/apperr"
	"blogauth/internal/logging"
	"blogauth/internal/middleware"
	"blogauth/internal/services"
)

type AuthController struct {
	auth   *services.AuthService
	logger logging.Logger
}

func NewAuthController(auth *services.AuthService, logger logging.Logger) *AuthController {
	return &AuthController{auth: auth, logger: logger}
}

type registerPayload struct {
	Username        string `json:"username" binding:"required,min=3,max=45"`
	Password        string `json:"password" binding:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password"`
	Email           string `json:"email" binding:"required,email"`
	Phone           string `json:"phone" binding:"required,numeric,min=3,max=20"`
}

func (a *AuthController) Register(c *gin.Context) {
	var p registerPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := a.auth.Register(c.Request.Context(), services.RegisterInput{
		Username: p.Username,
		Password: p.Password,
		Email:    p.Email,
		Phone:    p.Phone,
	})
	if err != nil {
		fail(c, a.logger, err)
		return
	}
	setBearer(c, sess.Token)
	c.JSON(http.StatusOK, gin.H{"message": "User created successfully", "user": sess.User})
}

// Username may hold either a username or an email.
type loginPayload struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *AuthController) Login(c *gin.Context) {
	var p loginPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := a.auth.Login(c.Request.Context(), p.Username, p.Password)
	if err != nil {
		fail(c, a.logger, err)
		return
	}
	setBearer(c, sess.Token)
	c.JSON(http.StatusOK, gin.H{"message": "Login success", "user": sess.User})
}

type verifyPayload struct {
	Code string `json:"code" binding:"required"`
	Ref  string `json:"ref" binding:"required"`
}

func (a *AuthController) Verify(c *gin.Context) {
	var p verifyPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	otpCtx, err := a.auth.Verify(c.Request.Context(), p.Code, p.Ref)
	if err != nil {
		fail(c, a.logger, err)
		return
	}
	msg := "Account verified successfully"
	if otpCtx == services.ContextPasswordReset {
		msg = "Code verified"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "context": otpCtx})
}

type requestOTPPayload struct {
	Email   string `json:"email" binding:"required,email"`
	Context string `json:"context"`
}

func (a *AuthController) RequestOTP(c *gin.Context) {
	var p requestOTPPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	if err := a.auth.RequestOTP(c.Request.Context(), p.Email, p.Context); err != nil {
		fail(c, a.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "A new code has been sent to your email"})
}

func (a *AuthController) KeepLogin(c *gin.Context) {
	sess, err := a.auth.KeepLogin(c.Request.Context(), middleware.UserUUID(c))
	if err != nil {
		fail(c, a.logger, err)
		return
	}
	setBearer(c, sess.Token)
	c.JSON(http.StatusOK, gin.H{"user": sess.User})
}

type forgotPasswordPayload struct {
	Email string `json:"email" binding:"required,email"`
}

func (a *AuthController) ForgotPassword(c *gin.Context) {
	var p forgotPasswordPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	if err := a.auth.ForgotPassword(c.Request.Context(), p.Email); err != nil {
		fail(c, a.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Check your email to reset your password"})
}

type resetPasswordPayload struct {
	Code            string `json:"code" binding:"required"`
	Ref             string `json:"ref" binding:"required"`
	Password        string `json:"password" binding:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password"`
}

func (a *AuthController) ResetPassword(c *gin.Context) {
	var p resetPasswordPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	err := a.auth.ResetPassword(c.Request.Context(), services.ResetPasswordInput{
		Code:     p.Code,
		Ref:      p.Ref,
		Password: p.Password,
	})
	if err != nil {
		fail(c, a.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully"})
}

type changeUsernamePayload struct {
	Current string `json:"current_username" binding:"required"`
	New     string `json:"new_username" binding:"required,min=3,max=45"`
}

type changeEmailPayload struct {
	Current string `json:"current_email" binding:"required,email"`
	New     string `json:"new_email" binding:"required,email"`
}

type changePhonePayload struct {
	Current string `json:"current_phone" binding:"required"`
	New     string `json:"new_phone" binding:"required,numeric,min=3,max=20"`
}

const msgChangeRequested = "Check your email to confirm the change"

func (a *AuthController) ChangeUsername(c *gin.Context) {
	var p changeUsernamePayload
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	if err := a.auth.ChangeUsername(c.Request.Context(), middleware.UserUUID(c), p.Current, p.New); err != nil {
		fail(c, a.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msgChangeRequested})
}

func (a *AuthController) ChangeEmail(c *gin.Context) {
	var p changeEmailPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	if err := a.auth.ChangeEmail(c.Request.Context(), middleware.UserUUID(c), p.Current, p.New); err != nil {
		fail(c, a.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msgChangeRequested})
}

func (a *AuthController) ChangePhone(c *gin.Context) {
	var p changePhonePayload
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	if err := a.auth.ChangePhone(c.Request.Context(), middleware.UserUUID(c), p.Current, p.New); err != nil {
		fail(c, a.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msgChangeRequested})
}

type changePasswordPayload struct {
	Current         string `json:"current_password" binding:"required"`
	New             string `json:"new_password" binding:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=New"`
}

func (a *AuthController) ChangePassword(c *gin.Context) {
	var p changePasswordPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := a.auth.ChangePassword(c.Request.Context(), middleware.UserUUID(c), p.Current, p.New)
	if err != nil {
		fail(c, a.logger, err)
		return
	}
	setBearer(c, sess.Token)
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}

func (a *AuthController) ConfirmChange(c *gin.Context) {
	user, err := a.auth.ConfirmChange(c.Request.Context(), c.Param("token"))
	if err != nil {
		fail(c, a.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Change confirmed", "user": user})
}

func (a *AuthController) ChangeProfile(c *gin.Context) {
	img, ok, err := readImage(c, "file")
	if err != nil {
		fail(c, a.logger, err)
		return
	}
	if !ok {
		fail(c, a.logger, apperr.Validation("file is required"))
		return
	}
	user, err := a.auth.ChangeProfilePicture(c.Request.Context(), middleware.UserUUID(c), img)
	if err != nil {
		fail(c, a.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile picture updated", "user": user})
}

func (a *AuthController) ProfilePicture(c *gin.Context) {
	url, err := a.auth.ProfilePicture(c.Request.Context(), middleware.UserUUID(c))
	if err != nil {
		fail(c, a.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"img_profile": url})
}

func (a *AuthController) DeleteAccount(c *gin.Context) {
	if err := a.auth.DeleteAccount(c.Request.Context(), middleware.UserUUID(c)); err != nil {
		fail(c, a.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account deleted successfully"})
}
