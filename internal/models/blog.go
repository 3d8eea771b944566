package models

import "time"

type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Article struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	CategoryID uint      `gorm:"index;not null" json:"category_id"`

	Title     string  `gorm:"uniqueIndex;not null" json:"title"`
	Content   string  `gorm:"type:text;not null" json:"content"`
	VideoURL  *string `json:"video_url"`
	ImageURL  *string `json:"image_url"`
	Keywords  string  `json:"keywords"`
	Country   string  `json:"country"`
	TotalLike int     `gorm:"default:0;not null" json:"total_like"`
	IsDeleted bool    `gorm:"default:false;index" json:"-"`
}

type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    uint      `gorm:"uniqueIndex:idx_like_user_article;not null" json:"user_id"`
	ArticleID uint      `gorm:"uniqueIndex:idx_like_user_article;not null" json:"article_id"`
}

// ArticleView is an article joined with its author and category for
// listing responses.
type ArticleView struct {
	Article
	Author       string  `json:"author"`
	AuthorImg    *string `json:"author_img"`
	CategoryName string  `json:"category"`
}
