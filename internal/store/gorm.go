package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"blogauth/internal/apperr"
	"blogauth/internal/models"
)

type GormStore struct {
	db *gorm.DB
}

// NewGorm expects db opened with TranslateError so unique violations
// surface as gorm.ErrDuplicatedKey.
func NewGorm(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Users() UserStore { return gormUsers{db: s.db} }
func (s *GormStore) Blog() BlogStore  { return gormBlog{db: s.db} }

func (s *GormStore) WithinTx(ctx context.Context, fn func(Stores) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func wrapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return apperr.Store(err)
	}
}

type gormUsers struct {
	db *gorm.DB
}

func whereUser(q *gorm.DB, f UserFilter) *gorm.DB {
	var (
		parts []string
		args  []any
	)
	add := func(col string, v any) {
		parts = append(parts, col+" = ?")
		args = append(args, v)
	}
	if f.ID != 0 {
		add("id", f.ID)
	}
	if f.UUID != "" {
		add("uuid", f.UUID)
	}
	if f.Username != "" {
		add("username", f.Username)
	}
	if f.Email != "" {
		add("email", f.Email)
	}
	if f.Phone != "" {
		add("phone", f.Phone)
	}
	if f.PendingToken != "" {
		add("pending_token", f.PendingToken)
	}
	if len(parts) == 0 {
		return q
	}
	sep := " AND "
	if f.Any {
		sep = " OR "
	}
	return q.Where("("+strings.Join(parts, sep)+")", args...)
}

func (r gormUsers) FindOne(ctx context.Context, f UserFilter) (*models.User, error) {
	if f.IsEmpty() {
		return nil, ErrEmptyFilter
	}
	var u models.User
	if err := whereUser(r.db.WithContext(ctx), f).First(&u).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &u, nil
}

func (r gormUsers) FindAll(ctx context.Context, f UserFilter, p Page) ([]models.User, int64, error) {
	q := whereUser(r.db.WithContext(ctx).Model(&models.User{}), f)

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, wrapErr(err)
	}
	var users []models.User
	q = q.Order("id")
	if p.Limit > 0 {
		q = q.Offset(p.Offset).Limit(p.Limit)
	}
	if err := q.Find(&users).Error; err != nil {
		return nil, 0, wrapErr(err)
	}
	return users, total, nil
}

func (r gormUsers) Create(ctx context.Context, u *models.User) error {
	return wrapErr(r.db.WithContext(ctx).Create(u).Error)
}

func (r gormUsers) Update(ctx context.Context, f UserFilter, ch UserChanges) error {
	if f.IsEmpty() {
		return ErrEmptyFilter
	}
	cols := changeColumns(ch)
	if len(cols) == 0 {
		return nil
	}
	res := whereUser(r.db.WithContext(ctx).Model(&models.User{}), f).Updates(cols)
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func changeColumns(ch UserChanges) map[string]any {
	cols := map[string]any{}
	if ch.Username != nil {
		cols["username"] = *ch.Username
	}
	if ch.Email != nil {
		cols["email"] = *ch.Email
	}
	if ch.Phone != nil {
		cols["phone"] = *ch.Phone
	}
	if ch.Password != nil {
		cols["password"] = *ch.Password
	}
	if ch.ImgProfile != nil {
		cols["img_profile"] = *ch.ImgProfile
	}
	if ch.Verified != nil {
		cols["verified"] = *ch.Verified
	}
	switch {
	case ch.OTP != nil:
		cols["otp"] = ch.OTP.Code
		cols["otp_context"] = ch.OTP.Context
		cols["otp_expires_at"] = ch.OTP.ExpiresAt
	case ch.ClearOTP:
		cols["otp"] = nil
		cols["otp_context"] = nil
		cols["otp_expires_at"] = nil
	}
	switch {
	case ch.Pending != nil:
		cols["pending_field"] = ch.Pending.Field
		cols["pending_value"] = ch.Pending.Value
		cols["pending_token"] = ch.Pending.Token
		cols["pending_expires_at"] = ch.Pending.ExpiresAt
	case ch.ClearPending:
		cols["pending_field"] = nil
		cols["pending_value"] = nil
		cols["pending_token"] = nil
		cols["pending_expires_at"] = nil
	}
	return cols
}

func (r gormUsers) Destroy(ctx context.Context, f UserFilter) (int64, error) {
	if f.IsEmpty() {
		return 0, ErrEmptyFilter
	}
	res := whereUser(r.db.WithContext(ctx), f).Delete(&models.User{})
	return res.RowsAffected, wrapErr(res.Error)
}

type gormBlog struct {
	db *gorm.DB
}

func (r gormBlog) Categories(ctx context.Context) ([]models.Category, error) {
	var cats []models.Category
	if err := r.db.WithContext(ctx).Order("id").Find(&cats).Error; err != nil {
		return nil, wrapErr(err)
	}
	return cats, nil
}

func (r gormBlog) FindCategory(ctx context.Context, id uint) (*models.Category, error) {
	var c models.Category
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &c, nil
}

func whereArticle(q *gorm.DB, f ArticleFilter) *gorm.DB {
	if f.ID != 0 {
		q = q.Where("articles.id = ?", f.ID)
	}
	if f.Title != "" {
		q = q.Where("articles.title = ?", f.Title)
	}
	if f.CategoryID != 0 {
		q = q.Where("articles.category_id = ?", f.CategoryID)
	}
	if f.UserID != 0 {
		q = q.Where("articles.user_id = ?", f.UserID)
	}
	if !f.WithDeleted {
		q = q.Where("articles.is_deleted = ?", false)
	}
	return q
}

func (r gormBlog) FindArticle(ctx context.Context, f ArticleFilter) (*models.Article, error) {
	var a models.Article
	if err := whereArticle(r.db.WithContext(ctx).Model(&models.Article{}), f).First(&a).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &a, nil
}

const articleViewColumns = "articles.*, users.username AS author, users.img_profile AS author_img, categories.name AS category_name"

func (r gormBlog) joinedArticles(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table("articles").
		Joins("JOIN users ON users.id = articles.user_id").
		Joins("JOIN categories ON categories.id = articles.category_id")
}

func (r gormBlog) ListArticles(ctx context.Context, f ArticleFilter, p Page, oldestFirst bool) ([]models.ArticleView, int64, error) {
	q := whereArticle(r.joinedArticles(ctx), f)

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, wrapErr(err)
	}

	order := "articles.created_at DESC, articles.id DESC"
	if oldestFirst {
		order = "articles.created_at ASC, articles.id ASC"
	}
	var views []models.ArticleView
	err := q.Select(articleViewColumns).Order(order).Offset(p.Offset).Limit(p.Limit).Scan(&views).Error
	if err != nil {
		return nil, 0, wrapErr(err)
	}
	return views, total, nil
}

func (r gormBlog) MostLiked(ctx context.Context, limit int) ([]models.ArticleView, error) {
	var views []models.ArticleView
	err := whereArticle(r.joinedArticles(ctx), ArticleFilter{}).
		Select(articleViewColumns).
		Order("articles.total_like DESC, articles.id ASC").
		Limit(limit).
		Scan(&views).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return views, nil
}

func (r gormBlog) CreateArticle(ctx context.Context, a *models.Article) error {
	return wrapErr(r.db.WithContext(ctx).Create(a).Error)
}

func (r gormBlog) SoftDeleteArticle(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.Article{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Update("is_deleted", true)
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r gormBlog) IncrementLikes(ctx context.Context, articleID uint) error {
	res := r.db.WithContext(ctx).Model(&models.Article{}).
		Where("id = ?", articleID).
		UpdateColumn("total_like", gorm.Expr("total_like + ?", 1))
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r gormBlog) FindLike(ctx context.Context, userID, articleID uint) (*models.Like, error) {
	var l models.Like
	err := r.db.WithContext(ctx).Where("user_id = ? AND article_id = ?", userID, articleID).First(&l).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &l, nil
}

func (r gormBlog) CreateLike(ctx context.Context, l *models.Like) error {
	return wrapErr(r.db.WithContext(ctx).Create(l).Error)
}

func (r gormBlog) LikedBy(ctx context.Context, userID uint, p Page) ([]models.ArticleView, int64, error) {
	q := whereArticle(r.joinedArticles(ctx), ArticleFilter{}).
		Joins("JOIN likes ON likes.article_id = articles.id AND likes.user_id = ?", userID)

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, wrapErr(err)
	}
	var views []models.ArticleView
	err := q.Select(articleViewColumns).Order("likes.id DESC").Offset(p.Offset).Limit(p.Limit).Scan(&views).Error
	if err != nil {
		return nil, 0, wrapErr(err)
	}
	return views, total, nil
}
