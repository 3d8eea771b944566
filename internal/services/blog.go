package services

import (
	"context"
	"errors"
	"math"
	"strings"

	"blogauth/internal/apperr"
	"blogauth/internal/logging"
	"blogauth/internal/models"
	"blogauth/internal/store"
	"blogauth/internal/upload"
)

const (
	ArticlePageSize   = 10
	MostFavoriteLimit = 10
)

type BlogService struct {
	store    store.Store
	uploader upload.Uploader
	logger   logging.Logger
}

func NewBlogService(st store.Store, uploader upload.Uploader, logger logging.Logger) *BlogService {
	if uploader == nil {
		uploader = upload.Disabled{}
	}
	return &BlogService{store: st, uploader: uploader, logger: logger}
}

type ArticlePage struct {
	TotalArticles int64                `json:"totalArticles"`
	ArticlesLimit int                  `json:"articlesLimit"`
	TotalPages    int                  `json:"totalPages"`
	CurrentPage   int                  `json:"currentPage"`
	Result        []models.ArticleView `json:"result"`
}

func newArticlePage(views []models.ArticleView, total int64, page int) *ArticlePage {
	if views == nil {
		views = []models.ArticleView{}
	}
	return &ArticlePage{
		TotalArticles: total,
		ArticlesLimit: ArticlePageSize,
		TotalPages:    int((total + ArticlePageSize - 1) / ArticlePageSize),
		CurrentPage:   page,
		Result:        views,
	}
}

// maxPage keeps the page offset from overflowing int.
const maxPage = math.MaxInt / ArticlePageSize

func pageOf(page int) (int, store.Page, error) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		return 0, store.Page{}, apperr.Validation("page is out of range")
	}
	return page, store.Page{Offset: (page - 1) * ArticlePageSize, Limit: ArticlePageSize}, nil
}

func (s *BlogService) Categories(ctx context.Context) ([]models.Category, error) {
	cats, err := s.store.Blog().Categories(ctx)
	if err != nil {
		return nil, fromStore(err, "category does not exist")
	}
	return cats, nil
}

// ArticlesByCategory lists live articles, newest first unless sort is
// "ASC". A zero categoryID lists every category.
func (s *BlogService) ArticlesByCategory(ctx context.Context, categoryID uint, sort string, page int) (*ArticlePage, error) {
	var oldestFirst bool
	switch strings.ToUpper(strings.TrimSpace(sort)) {
	case "", "DESC":
	case "ASC":
		oldestFirst = true
	default:
		return nil, apperr.Validation("sort must be ASC or DESC")
	}

	if categoryID != 0 {
		if _, err := s.store.Blog().FindCategory(ctx, categoryID); err != nil {
			return nil, fromStore(err, "category does not exist")
		}
	}

	page, p, err := pageOf(page)
	if err != nil {
		return nil, err
	}
	views, total, err := s.store.Blog().ListArticles(ctx, store.ArticleFilter{CategoryID: categoryID}, p, oldestFirst)
	if err != nil {
		return nil, fromStore(err, msgArticleNotFound)
	}
	return newArticlePage(views, total, page), nil
}

func (s *BlogService) MostFavorite(ctx context.Context) ([]models.ArticleView, error) {
	views, err := s.store.Blog().MostLiked(ctx, MostFavoriteLimit)
	if err != nil {
		return nil, fromStore(err, msgArticleNotFound)
	}
	if views == nil {
		views = []models.ArticleView{}
	}
	return views, nil
}

func (s *BlogService) LikedArticles(ctx context.Context, callerUUID string, page int) (*ArticlePage, error) {
	user, err := s.caller(ctx, s.store, callerUUID)
	if err != nil {
		return nil, err
	}
	page, p, err := pageOf(page)
	if err != nil {
		return nil, err
	}
	views, total, err := s.store.Blog().LikedBy(ctx, user.ID, p)
	if err != nil {
		return nil, fromStore(err, msgArticleNotFound)
	}
	return newArticlePage(views, total, page), nil
}

// Like records the caller's like and bumps the article's counter in one
// transaction. Liking twice is a Conflict.
func (s *BlogService) Like(ctx context.Context, callerUUID string, articleID uint) (*models.Like, error) {
	var like *models.Like
	err := s.store.WithinTx(ctx, func(tx store.Stores) error {
		user, err := s.caller(ctx, tx, callerUUID)
		if err != nil {
			return err
		}
		if _, err := tx.Blog().FindArticle(ctx, store.ArticleFilter{ID: articleID}); err != nil {
			return fromStore(err, msgArticleNotFound)
		}

		_, err = tx.Blog().FindLike(ctx, user.ID, articleID)
		switch {
		case err == nil:
			return apperr.Conflict("article already liked")
		case !errors.Is(err, store.ErrNotFound):
			return fromStore(err, msgArticleNotFound)
		}

		like = &models.Like{UserID: user.ID, ArticleID: articleID}
		if err := tx.Blog().CreateLike(ctx, like); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Conflict("article already liked")
			}
			return fromStore(err, msgArticleNotFound)
		}
		return fromStore(tx.Blog().IncrementLikes(ctx, articleID), msgArticleNotFound)
	})
	if err != nil {
		return nil, err
	}
	return like, nil
}

type ArticleInput struct {
	Title      string
	Content    string
	CategoryID uint
	Country    string
	Keywords   string
	VideoURL   string
}

// CreateArticle publishes an article by the caller. thumbnail is optional.
func (s *BlogService) CreateArticle(ctx context.Context, callerUUID string, in ArticleInput, thumbnail *upload.Image) (*models.Article, error) {
	in.Title = strings.TrimSpace(in.Title)

	var contentType string
	if thumbnail != nil {
		ct, err := upload.Validate(*thumbnail)
		if err != nil {
			return nil, apperr.Validation(err.Error())
		}
		contentType = ct
	}

	user, err := s.caller(ctx, s.store, callerUUID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Blog().FindCategory(ctx, in.CategoryID); err != nil {
		return nil, fromStore(err, "category does not exist")
	}
	_, err = s.store.Blog().FindArticle(ctx, store.ArticleFilter{Title: in.Title, WithDeleted: true})
	switch {
	case err == nil:
		return nil, apperr.Conflict("article already exists")
	case !errors.Is(err, store.ErrNotFound):
		return nil, fromStore(err, msgArticleNotFound)
	}

	article := &models.Article{
		UserID:     user.ID,
		CategoryID: in.CategoryID,
		Title:      in.Title,
		Content:    in.Content,
		Country:    in.Country,
		Keywords:   in.Keywords,
	}
	if in.VideoURL != "" {
		article.VideoURL = &in.VideoURL
	}
	if thumbnail != nil {
		url, err := s.uploader.Upload(ctx, upload.FolderThumbnails, thumbnail.Filename, contentType, thumbnail.Data)
		if err != nil {
			if errors.Is(err, upload.ErrDisabled) {
				return nil, apperr.Validation("image uploads are not enabled")
			}
			return nil, apperr.Internal("upload thumbnail", err)
		}
		article.ImageURL = &url
	}

	if err := s.store.Blog().CreateArticle(ctx, article); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflict("article already exists")
		}
		return nil, fromStore(err, msgArticleNotFound)
	}
	s.logger.Info(ctx, "article created", "user", user.UUID, "article", article.ID)
	return article, nil
}

// DeleteArticle soft-deletes an article. Only its author may do so.
func (s *BlogService) DeleteArticle(ctx context.Context, callerUUID string, articleID uint) error {
	return s.store.WithinTx(ctx, func(tx store.Stores) error {
		user, err := s.caller(ctx, tx, callerUUID)
		if err != nil {
			return err
		}
		article, err := tx.Blog().FindArticle(ctx, store.ArticleFilter{ID: articleID})
		if err != nil {
			return fromStore(err, msgArticleNotFound)
		}
		if article.UserID != user.ID {
			return apperr.Forbidden("only the author can delete this article")
		}
		return fromStore(tx.Blog().SoftDeleteArticle(ctx, articleID), msgArticleNotFound)
	})
}

func (s *BlogService) caller(ctx context.Context, st store.Stores, id string) (*models.User, error) {
	if id == "" {
		return nil, apperr.Unauthorized("missing user identity")
	}
	user, err := st.Users().FindOne(ctx, store.UserFilter{UUID: id})
	if err != nil {
		return nil, fromStore(err, msgUserNotFound)
	}
	return user, nil
}
