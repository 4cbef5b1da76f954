package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"linkpage/api/internal/auth"
	"linkpage/api/internal/authpw"
	"linkpage/api/internal/config"
	"linkpage/api/internal/email"
	"linkpage/api/internal/media"
	"linkpage/api/internal/search"
	"linkpage/api/internal/store"
	"linkpage/api/internal/util"
	"linkpage/api/internal/validate"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

// DataStore is everything the service needs from persistence. Both
// store.PostgresStore and store.MemoryStore satisfy it.
type DataStore interface {
	authpw.UserStore
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	GetProfileByUser(context.Context, string) (store.Profile, error)
	GetProfileBySlug(context.Context, string) (store.Profile, error)
	SlugExists(context.Context, string) (bool, error)
	CreateProfile(context.Context, store.Profile) (store.Profile, error)
	UpdateProfile(context.Context, string, store.ProfileUpdate) (store.Profile, error)
	ListProfiles(context.Context) ([]store.Profile, error)
	ListItems(context.Context, string) ([]store.Item, error)
	CreateItem(context.Context, store.Item) (store.Item, error)
	DeleteItem(context.Context, string, string) (bool, error)
	RepositionItems(context.Context, string, []store.Placement) (int, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type mailer interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
}

type avatarUploader interface {
	UploadAvatar(ctx context.Context, userID string, r io.Reader) (string, error)
	MaxBytes() int64
}

type Service struct {
	cfg      config.Config
	store    DataStore
	sessions sessionStore
	authpw   *authpw.Service
	mail     mailer
	search   *search.Service
	avatars  avatarUploader
}

func New(cfg config.Config, dataStore DataStore) *Service {
	return NewWithSessionStore(cfg, dataStore, dataStore)
}

// NewWithSessionStore keeps refresh sessions outside the main store (Redis).
func NewWithSessionStore(cfg config.Config, dataStore DataStore, sessions sessionStore) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		authpw:   authpw.NewService(dataStore),
		mail: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
	}
	s.search = search.NewService(nil, search.NewScan(s.SearchRecords))
	return s
}

// SetSearch replaces the default scan-only search.
func (s *Service) SetSearch(svc *search.Service) {
	s.search = svc
}

func (s *Service) SetAvatarUploader(u *media.Uploader) {
	if u != nil {
		s.avatars = u
	}
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SendVerificationEmail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	link := strings.TrimRight(s.cfg.PublicURL, "/") + "/verify-email?token=" + token
	if err := s.mail.SendVerificationEmail(to, userName, link); err != nil {
		log.Printf("email: verification to %s failed: %v", to, err)
	}
}

func (s *Service) SendPasswordResetEmail(user store.User, token string) {
	if !s.SMTPConfigured() {
		return
	}
	link := strings.TrimRight(s.cfg.PublicURL, "/") + "/reset-password?token=" + token
	if err := s.mail.SendPasswordResetEmail(user.Email, user.DisplayName, link); err != nil {
		log.Printf("email: password reset to %s failed: %v", user.Email, err)
	}
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the old one is revoked before a new
// session is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	owner, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, owner.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewSecret("rft")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// ProfileInput carries the editable profile fields of a create or update
// request.
type ProfileInput struct {
	Slug        string `json:"slug"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
	AvatarURL   string `json:"avatarUrl"`
	Theme       string `json:"theme"`
}

type ItemInput struct {
	Kind  string `json:"kind"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type PlacementInput struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// GetProfile returns the caller's profile with its items, or a nil profile
// when none exists yet.
func (s *Service) GetProfile(ctx context.Context, userID string) (map[string]any, error) {
	profile, err := s.store.GetProfileByUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{"profile": nil, "items": []map[string]any{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.pagePayload(ctx, profile)
}

func (s *Service) CreateProfile(ctx context.Context, userID string, input ProfileInput) (map[string]any, error) {
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if err := validate.Slug(slug); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Theme) == "" {
		input.Theme = validate.ThemeMinimal
	}
	if strings.TrimSpace(input.DisplayName) == "" {
		if user, err := s.store.GetUserByID(ctx, userID); err == nil {
			input.DisplayName = user.DisplayName
		}
	}
	fields := validate.ProfileFields{
		DisplayName: strings.TrimSpace(input.DisplayName),
		Bio:         strings.TrimSpace(input.Bio),
		AvatarURL:   strings.TrimSpace(input.AvatarURL),
		Theme:       input.Theme,
	}
	if err := validate.Profile(fields); err != nil {
		return nil, err
	}

	if _, err := s.store.GetProfileByUser(ctx, userID); err == nil {
		return nil, errProfileExists
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	profile, err := s.store.CreateProfile(ctx, store.Profile{
		UserID:      userID,
		Slug:        slug,
		DisplayName: fields.DisplayName,
		Bio:         fields.Bio,
		AvatarURL:   fields.AvatarURL,
		Theme:       fields.Theme,
	})
	if errors.Is(err, store.ErrProfileExists) {
		return nil, errProfileExists
	}
	if errors.Is(err, store.ErrSlugTaken) {
		return nil, domainError(http.StatusConflict, "SLUG_TAKEN", "This username is already taken", map[string]any{"slug": slug})
	}
	if err != nil {
		return nil, err
	}

	s.search.IndexProfile(searchRecord(profile))
	return map[string]any{"profile": profileToMap(profile), "items": []map[string]any{}}, nil
}

// UpdateProfile replaces the editable fields. The slug is never touched.
func (s *Service) UpdateProfile(ctx context.Context, userID string, input ProfileInput) (map[string]any, error) {
	fields := validate.ProfileFields{
		DisplayName: strings.TrimSpace(input.DisplayName),
		Bio:         strings.TrimSpace(input.Bio),
		AvatarURL:   strings.TrimSpace(input.AvatarURL),
		Theme:       input.Theme,
	}
	if err := validate.Profile(fields); err != nil {
		return nil, err
	}
	profile, err := s.store.UpdateProfile(ctx, userID, store.ProfileUpdate{
		DisplayName: fields.DisplayName,
		Bio:         fields.Bio,
		AvatarURL:   fields.AvatarURL,
		Theme:       fields.Theme,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	s.search.IndexProfile(searchRecord(profile))
	return map[string]any{"profile": profileToMap(profile)}, nil
}

func (s *Service) UploadAvatar(ctx context.Context, userID string, body io.Reader) (map[string]any, error) {
	if s.avatars == nil {
		return nil, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Avatar uploads are not configured", nil)
	}
	url, err := s.avatars.UploadAvatar(ctx, userID, body)
	switch {
	case errors.Is(err, media.ErrEmpty):
		return nil, &validate.FieldError{Field: "avatar", Reason: "is empty"}
	case errors.Is(err, media.ErrTooLarge):
		return nil, domainError(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Image is too large", map[string]any{"maxBytes": s.avatars.MaxBytes()})
	case errors.Is(err, media.ErrUnsupportedType):
		return nil, domainError(http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Use a PNG, JPEG, GIF or WebP image", nil)
	case err != nil:
		return nil, err
	}
	return map[string]any{"url": url}, nil
}

func (s *Service) CreateItem(ctx context.Context, userID string, input ItemInput) (map[string]any, error) {
	kind := strings.TrimSpace(input.Kind)
	title := strings.TrimSpace(input.Title)
	target := strings.TrimSpace(input.URL)
	if err := validate.Item(kind, title, target); err != nil {
		return nil, err
	}
	profile, err := s.ownProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	item, err := s.store.CreateItem(ctx, store.Item{
		ProfileID: profile.ID,
		Kind:      kind,
		Title:     title,
		URL:       target,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": itemToMap(item)}, nil
}

// DeleteItem is idempotent: ids that are malformed, gone, or owned by
// someone else report removed=false.
func (s *Service) DeleteItem(ctx context.Context, userID, itemID string) (map[string]any, error) {
	profile, err := s.ownProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(itemID); err != nil {
		return map[string]any{"removed": false}, nil
	}
	removed, err := s.store.DeleteItem(ctx, profile.ID, itemID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"removed": removed}, nil
}

// ReorderItems applies positions to the caller's items. Entries for items the
// caller does not own are skipped.
func (s *Service) ReorderItems(ctx context.Context, userID string, input []PlacementInput) (map[string]any, error) {
	placements := make([]validate.Placement, 0, len(input))
	for _, p := range input {
		placements = append(placements, validate.Placement{ID: p.ID, Position: p.Position})
	}
	if err := validate.Placements(placements); err != nil {
		return nil, err
	}
	profile, err := s.ownProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(placements) == 0 {
		return map[string]any{"updated": 0}, nil
	}
	storePlacements := make([]store.Placement, 0, len(placements))
	for _, p := range placements {
		storePlacements = append(storePlacements, store.Placement{ID: p.ID, Position: p.Position})
	}
	updated, err := s.store.RepositionItems(ctx, profile.ID, storePlacements)
	if err != nil {
		return nil, err
	}
	return map[string]any{"updated": updated}, nil
}

// CheckSlug reports whether slug can be claimed. Invalid slugs are reported
// as unavailable with the validation reason rather than as an error.
func (s *Service) CheckSlug(ctx context.Context, slug string) (map[string]any, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if err := validate.Slug(slug); err != nil {
		var fieldErr *validate.FieldError
		if errors.As(err, &fieldErr) {
			return map[string]any{"slug": slug, "available": false, "error": fieldErr.Reason}, nil
		}
		return nil, err
	}
	exists, err := s.store.SlugExists(ctx, slug)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{"slug": slug, "available": !exists}
	if exists {
		payload["error"] = "already taken"
	}
	return payload, nil
}

func (s *Service) PublicPage(ctx context.Context, slug string) (map[string]any, error) {
	profile, err := s.store.GetProfileBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errPageNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.pagePayload(ctx, profile)
}

func (s *Service) Search(ctx context.Context, q, theme string, limit, offset int) (map[string]any, error) {
	if theme != "" {
		if err := validate.Theme(theme); err != nil {
			return nil, err
		}
	}
	if offset < 0 {
		return nil, &validate.FieldError{Field: "offset", Reason: "must be a non-negative integer"}
	}
	resp := s.search.Search(ctx, search.Query{Text: q, Theme: theme, Limit: limit, Offset: offset})
	return map[string]any{
		"query":   resp.Query,
		"results": resp.Results,
		"total":   resp.Total,
	}, nil
}

// ReindexSearch pushes every profile to the search index.
func (s *Service) ReindexSearch(ctx context.Context) {
	s.search.Reindex(ctx, s.SearchRecords)
}

// SearchRecords lists every profile in the shape the search index stores.
func (s *Service) SearchRecords(ctx context.Context) ([]search.ProfileRecord, error) {
	profiles, err := s.store.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	records := make([]search.ProfileRecord, 0, len(profiles))
	for _, p := range profiles {
		records = append(records, searchRecord(p))
	}
	return records, nil
}

func (s *Service) ownProfile(ctx context.Context, userID string) (store.Profile, error) {
	profile, err := s.store.GetProfileByUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Profile{}, errProfileNotFound
	}
	return profile, err
}

func (s *Service) pagePayload(ctx context.Context, profile store.Profile) (map[string]any, error) {
	items, err := s.store.ListItems(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	mapped := make([]map[string]any, 0, len(items))
	for _, item := range items {
		mapped = append(mapped, itemToMap(item))
	}
	return map[string]any{"profile": profileToMap(profile), "items": mapped}, nil
}

func profileToMap(p store.Profile) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"slug":        p.Slug,
		"displayName": p.DisplayName,
		"bio":         p.Bio,
		"avatarUrl":   p.AvatarURL,
		"theme":       p.Theme,
		"createdAt":   p.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":   p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func itemToMap(item store.Item) map[string]any {
	return map[string]any{
		"id":       item.ID,
		"kind":     item.Kind,
		"title":    item.Title,
		"url":      item.URL,
		"position": item.Position,
	}
}

func searchRecord(p store.Profile) search.ProfileRecord {
	return search.ProfileRecord{
		ID:          p.ID,
		Slug:        p.Slug,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		AvatarURL:   p.AvatarURL,
		Theme:       p.Theme,
	}
}
