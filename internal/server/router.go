// Package server wires controllers onto a gin engine.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"blogauth/internal/controllers"
	"blogauth/internal/logging"
	"blogauth/internal/middleware"
	"blogauth/internal/services"
	"blogauth/internal/token"
)

type Deps struct {
	Auth   *services.AuthService
	Blog   *services.BlogService
	Tokens *token.Service
	Logger logging.Logger
}

func NewRouter(d Deps) *gin.Engine {
	controllers.UseJSONFieldNames()

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(d.Logger))
	r.MaxMultipartMemory = 2 << 20

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authn := middleware.JWT(d.Tokens)
	auth := controllers.NewAuthController(d.Auth, d.Logger)
	blog := controllers.NewBlogController(d.Blog, d.Logger)

	a := r.Group("/api/auth")
	{
		a.POST("/register", auth.Register)
		a.POST("/login", auth.Login)
		a.POST("/verify", auth.Verify)
		a.POST("/request-otp", auth.RequestOTP)
		a.PUT("/forgot-password", auth.ForgotPassword)
		a.PATCH("/reset-password", auth.ResetPassword)
		a.GET("/users/confirm-change/:token", auth.ConfirmChange)
	}
	protected := a.Group("", authn)
	{
		protected.GET("/keep-login", auth.KeepLogin)
		protected.PATCH("/users/change-username", auth.ChangeUsername)
		protected.PATCH("/users/change-email", auth.ChangeEmail)
		protected.PATCH("/users/change-phone", auth.ChangePhone)
		protected.PATCH("/users/change-password", auth.ChangePassword)
		protected.PATCH("/users/change-profile", auth.ChangeProfile)
		protected.GET("/users/profile-picture", auth.ProfilePicture)
		protected.DELETE("/account", auth.DeleteAccount)
	}

	b := r.Group("/api/blog")
	{
		b.GET("", blog.Articles)
		b.GET("/all-category", blog.Categories)
		b.GET("/most-fav", blog.MostFavorite)
		b.GET("/liked", authn, blog.Liked)
		b.POST("/like", authn, blog.Like)
		b.POST("/create-article", authn, blog.CreateArticle)
		b.PATCH("/delete-article", authn, blog.DeleteArticle)
	}
	return r
}
