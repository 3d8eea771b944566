// Package store is the persistence boundary for users and blog content.
// Relationships are expressed as foreign-key fields and explicit join
// queries, never as ORM associations.
package store

import (
	"context"
	"errors"
	"time"

	"blogauth/internal/models"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrDuplicate   = errors.New("duplicate record")
	ErrEmptyFilter = errors.New("filter matches every row")
)

// UserFilter selects users by the non-zero fields. Fields are ANDed unless
// Any is set, in which case a user matching any one of them is selected.
type UserFilter struct {
	ID           uint
	UUID         string
	Username     string
	Email        string
	Phone        string
	PendingToken string
	Any          bool
}

func (f UserFilter) IsEmpty() bool {
	return f.ID == 0 && f.UUID == "" && f.Username == "" && f.Email == "" &&
		f.Phone == "" && f.PendingToken == ""
}

type Page struct {
	Offset int
	Limit  int
}

// OTPState is a freshly issued one-time code.
type OTPState struct {
	Code      string
	Context   string
	ExpiresAt time.Time
}

// PendingState is a freshly requested contact rotation.
type PendingState struct {
	Field     string
	Value     string
	Token     string
	ExpiresAt time.Time
}

// UserChanges lists the columns to write. Nil fields are left untouched.
type UserChanges struct {
	Username   *string
	Email      *string
	Phone      *string
	Password   *string
	ImgProfile *string
	Verified   *bool

	OTP          *OTPState
	ClearOTP     bool
	Pending      *PendingState
	ClearPending bool
}

type UserStore interface {
	FindOne(ctx context.Context, f UserFilter) (*models.User, error)
	FindAll(ctx context.Context, f UserFilter, p Page) ([]models.User, int64, error)
	Create(ctx context.Context, u *models.User) error
	Update(ctx context.Context, f UserFilter, ch UserChanges) error
	Destroy(ctx context.Context, f UserFilter) (int64, error)
}

type ArticleFilter struct {
	ID         uint
	Title      string
	CategoryID uint
	UserID     uint
	// WithDeleted includes soft-deleted articles.
	WithDeleted bool
}

type BlogStore interface {
	Categories(ctx context.Context) ([]models.Category, error)
	FindCategory(ctx context.Context, id uint) (*models.Category, error)

	FindArticle(ctx context.Context, f ArticleFilter) (*models.Article, error)
	ListArticles(ctx context.Context, f ArticleFilter, p Page, oldestFirst bool) ([]models.ArticleView, int64, error)
	MostLiked(ctx context.Context, limit int) ([]models.ArticleView, error)
	CreateArticle(ctx context.Context, a *models.Article) error
	SoftDeleteArticle(ctx context.Context, id uint) error
	IncrementLikes(ctx context.Context, articleID uint) error

	FindLike(ctx context.Context, userID, articleID uint) (*models.Like, error)
	CreateLike(ctx context.Context, l *models.Like) error
	LikedBy(ctx context.Context, userID uint, p Page) ([]models.ArticleView, int64, error)
}

type Stores interface {
	Users() UserStore
	Blog() BlogStore
}

// Transactor runs fn with stores bound to one transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(Stores) error) error
}

type Store interface {
	Stores
	Transactor
}
