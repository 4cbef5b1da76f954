package store

import (
	"errors"
	"time"
)

var (
	ErrEmailTaken    = errors.New("email already registered")
	ErrProfileExists = errors.New("profile already exists")
	ErrSlugTaken     = errors.New("slug already taken")
)

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Profile is the public page of one user. The slug never changes once set.
type Profile struct {
	ID          string
	UserID      string
	Slug        string
	DisplayName string
	Bio         string
	AvatarURL   string
	Theme       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProfileUpdate holds the editable profile fields. Slug is not among them.
type ProfileUpdate struct {
	DisplayName string
	Bio         string
	AvatarURL   string
	Theme       string
}

type Item struct {
	ID        string
	ProfileID string
	Kind      string
	Title     string
	URL       string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Placement struct {
	ID       string
	Position int
}

// ClickEvent is recorded per visit of a link item. Nothing reads it yet.
type ClickEvent struct {
	ID        int64
	ItemID    string
	ClickedAt time.Time
	Referrer  string
	UserAgent string
}
