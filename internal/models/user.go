package models

import (
	"time"
)

type User struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UUID      string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Username   string  `gorm:"uniqueIndex;not null" json:"username"`
	Email      string  `gorm:"uniqueIndex;not null" json:"email"`
	Phone      string  `gorm:"uniqueIndex;not null" json:"phone"`
	Password   string  `gorm:"not null" json:"-"`
	Verified   bool    `gorm:"default:false" json:"verified"`
	ImgProfile *string `json:"img_profile"`

	// One-time code; cleared once consumed.
	OTP          *string    `gorm:"column:otp" json:"-"`
	OTPContext   *string    `gorm:"column:otp_context" json:"-"`
	OTPExpiresAt *time.Time `gorm:"column:otp_expires_at" json:"-"`

	Pending PendingChange `gorm:"embedded;embeddedPrefix:pending_" json:"-"`
}

// PendingChange is a username, email or phone rotation awaiting
// confirmation through the emailed link.
type PendingChange struct {
	Field     *string    `json:"-"`
	Value     *string    `json:"-"`
	Token     *string    `gorm:"index" json:"-"`
	ExpiresAt *time.Time `json:"-"`
}

const (
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldPhone    = "phone"
)

// OTPValid reports whether code matches the stored one for ctx and has not
// expired at now.
func (u *User) OTPValid(code, ctx string, now time.Time) bool {
	if u.OTP == nil || u.OTPExpiresAt == nil || u.OTPContext == nil {
		return false
	}
	return *u.OTP == code && *u.OTPContext == ctx && now.Before(*u.OTPExpiresAt)
}

// PendingValid reports whether a rotation is stored and unexpired at now.
func (u *User) PendingValid(now time.Time) bool {
	p := u.Pending
	if p.Field == nil || p.Value == nil || p.Token == nil || p.ExpiresAt == nil {
		return false
	}
	return now.Before(*p.ExpiresAt)
}
