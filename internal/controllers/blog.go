package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"blogauth/internal/apperr"
	"blogauth/internal/logging"
	"blogauth/internal/middleware"
	"blogauth/internal/services"
	"blogauth/internal/upload"
)

type BlogController struct {
	blog   *services.BlogService
	logger logging.Logger
}

func NewBlogController(blog *services.BlogService, logger logging.Logger) *BlogController {
	return &BlogController{blog: blog, logger: logger}
}

// queryInt reads a positive integer query parameter; absent or malformed
// values yield def.
func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (b *BlogController) Articles(c *gin.Context) {
	page, err := b.blog.ArticlesByCategory(
		c.Request.Context(),
		uint(queryInt(c, "id_cat", 0)),
		c.Query("sort"),
		queryInt(c, "page", 1),
	)
	if err != nil {
		fail(c, b.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (b *BlogController) Categories(c *gin.Context) {
	cats, err := b.blog.Categories(c.Request.Context())
	if err != nil {
		fail(c, b.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": cats})
}

func (b *BlogController) MostFavorite(c *gin.Context) {
	views, err := b.blog.MostFavorite(c.Request.Context())
	if err != nil {
		fail(c, b.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": views})
}

func (b *BlogController) Liked(c *gin.Context) {
	page, err := b.blog.LikedArticles(c.Request.Context(), middleware.UserUUID(c), queryInt(c, "page", 1))
	if err != nil {
		fail(c, b.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type articleRefPayload struct {
	ArticleID uint `json:"article_id" binding:"required,gt=0"`
}

func (b *BlogController) Like(c *gin.Context) {
	var p articleRefPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	like, err := b.blog.Like(c.Request.Context(), middleware.UserUUID(c), p.ArticleID)
	if err != nil {
		fail(c, b.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Like Article Success", "data": like})
}

type createArticlePayload struct {
	Title      string `json:"title" binding:"required,max=45"`
	Content    string `json:"content" binding:"required"`
	CategoryID uint   `json:"category_id" binding:"required,gt=0"`
	Country    string `json:"country" binding:"max=45"`
	Keywords   string `json:"keywords" binding:"required,max=45"`
	VideoURL   string `json:"video_url" binding:"omitempty,url"`
}

// CreateArticle takes a multipart form: "data" holds the article as JSON
// and "file" an optional thumbnail.
func (b *BlogController) CreateArticle(c *gin.Context) {
	var p createArticlePayload
	if err := json.Unmarshal([]byte(c.PostForm("data")), &p); err != nil {
		fail(c, b.logger, apperr.Validation("data must be a JSON object"))
		return
	}
	if err := binding.Validator.ValidateStruct(&p); err != nil {
		badRequest(c, err)
		return
	}

	img, ok, err := readImage(c, "file")
	if err != nil {
		fail(c, b.logger, err)
		return
	}
	var thumb *upload.Image
	if ok {
		thumb = &img
	}

	article, err := b.blog.CreateArticle(c.Request.Context(), middleware.UserUUID(c), services.ArticleInput{
		Title:      p.Title,
		Content:    p.Content,
		CategoryID: p.CategoryID,
		Country:    p.Country,
		Keywords:   p.Keywords,
		VideoURL:   p.VideoURL,
	}, thumb)
	if err != nil {
		fail(c, b.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Create article success", "data": article})
}

func (b *BlogController) DeleteArticle(c *gin.Context) {
	var p articleRefPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	if err := b.blog.DeleteArticle(c.Request.Context(), middleware.UserUUID(c), p.ArticleID); err != nil {
		fail(c, b.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Article deleted successfully"})
}
