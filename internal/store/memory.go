package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type passwordReset struct {
	userID    string
	expiresAt time.Time
	used      bool
}

type refreshSession struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

// MemoryStore keeps everything in process memory with the same semantics as
// PostgresStore. It backs DATABASE_URL=memory:// and tests.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	users    map[string]User
	resets   map[string]passwordReset
	sessions map[string]refreshSession
	revoked  map[string]time.Time
	profiles map[string]Profile // by id
	items    map[string]Item    // by id
	order    map[string]int64   // insertion sequence, breaks created_at ties
	seq      int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		users:    map[string]User{},
		resets:   map[string]passwordReset{},
		sessions: map[string]refreshSession{},
		revoked:  map[string]time.Time{},
		profiles: map[string]Profile{},
		items:    map[string]Item{},
		order:    map[string]int64{},
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return ErrEmailTaken
		}
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	s.users[user.ID] = user
	return nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(email)
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return User{}, sql.ErrNoRows
}

func (s *MemoryStore) GetUserByID(_ context.Context, userID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return User{}, sql.ErrNoRows
	}
	return user, nil
}

func (s *MemoryStore) UpdateUserVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[userID]; ok {
		user.VerificationToken = token
		user.VerificationExpiresAt = &expiresAt
		user.UpdatedAt = s.now()
		s.users[userID] = user
	}
	return nil
}

func (s *MemoryStore) VerifyUserEmail(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, user := range s.users {
		if token == "" || user.VerificationToken != token {
			continue
		}
		if user.VerificationExpiresAt != nil && !user.VerificationExpiresAt.After(now) {
			return sql.ErrNoRows
		}
		user.IsEmailVerified = true
		user.VerificationToken = ""
		user.VerificationExpiresAt = nil
		user.UpdatedAt = now
		s.users[id] = user
		return nil
	}
	return sql.ErrNoRows
}

func (s *MemoryStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[userID]; ok {
		user.PasswordHash = passwordHash
		user.UpdatedAt = s.now()
		s.users[userID] = user
	}
	return nil
}

func (s *MemoryStore) CreatePasswordReset(_ context.Context, userID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets[token] = passwordReset{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reset, ok := s.resets[token]
	if !ok || reset.used || !reset.expiresAt.After(s.now()) {
		return "", sql.ErrNoRows
	}
	return reset.userID, nil
}

func (s *MemoryStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reset, ok := s.resets[token]; ok {
		reset.used = true
		s.resets[token] = reset
	}
	return nil
}

func (s *MemoryStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[tokenHash] = refreshSession{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[tokenHash]; ok {
		session.revoked = true
		s.sessions[tokenHash] = session
	}
	return nil
}

func (s *MemoryStore) LookupRefreshSession(_ context.Context, tokenHash string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[tokenHash]
	if !ok || session.revoked || !session.expiresAt.After(s.now()) {
		return User{}, sql.ErrNoRows
	}
	user, ok := s.users[session.userID]
	if !ok {
		return User{}, sql.ErrNoRows
	}
	return User{ID: user.ID, DisplayName: user.DisplayName, Email: user.Email}, nil
}

func (s *MemoryStore) RevokeAccessToken(_ context.Context, jti string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revoked[jti]; !ok {
		s.revoked[jti] = exp
	}
	return nil
}

func (s *MemoryStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[jti]
	return ok, nil
}

func (s *MemoryStore) GetProfileByUser(_ context.Context, userID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.UserID == userID {
			return p, nil
		}
	}
	return Profile{}, sql.ErrNoRows
}

func (s *MemoryStore) GetProfileBySlug(_ context.Context, slug string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.Slug == slug {
			return p, nil
		}
	}
	return Profile{}, sql.ErrNoRows
}

func (s *MemoryStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	_, err := s.GetProfileBySlug(ctx, slug)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *MemoryStore) CreateProfile(_ context.Context, profile Profile) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.profiles {
		if existing.UserID == profile.UserID {
			return Profile{}, ErrProfileExists
		}
		if existing.Slug == profile.Slug {
			return Profile{}, ErrSlugTaken
		}
	}
	if profile.Theme == "" {
		profile.Theme = "minimal"
	}
	now := s.now()
	profile.ID = uuid.NewString()
	profile.CreatedAt, profile.UpdatedAt = now, now
	s.profiles[profile.ID] = profile
	s.seq++
	s.order[profile.ID] = s.seq
	return profile, nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, userID string, update ProfileUpdate) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.profiles {
		if p.UserID != userID {
			continue
		}
		p.DisplayName = update.DisplayName
		p.Bio = update.Bio
		p.AvatarURL = update.AvatarURL
		p.Theme = update.Theme
		p.UpdatedAt = s.now()
		s.profiles[id] = p
		return p, nil
	}
	return Profile{}, sql.ErrNoRows
}

func (s *MemoryStore) ListProfiles(_ context.Context) ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profiles := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return s.order[profiles[i].ID] < s.order[profiles[j].ID] })
	return profiles, nil
}

func (s *MemoryStore) ListItems(_ context.Context, profileID string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Item, 0)
	for _, item := range s.items {
		if item.ProfileID == profileID {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return s.order[items[i].ID] < s.order[items[j].ID]
	})
	return items, nil
}

func (s *MemoryStore) CreateItem(_ context.Context, item Item) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[item.ProfileID]; !ok {
		return Item{}, sql.ErrNoRows
	}
	item.Position = 0
	for _, existing := range s.items {
		if existing.ProfileID == item.ProfileID && existing.Position+1 > item.Position {
			item.Position = existing.Position + 1
		}
	}
	now := s.now()
	item.ID = uuid.NewString()
	item.CreatedAt, item.UpdatedAt = now, now
	s.items[item.ID] = item
	s.seq++
	s.order[item.ID] = s.seq
	return item, nil
}

func (s *MemoryStore) DeleteItem(_ context.Context, profileID, itemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok || item.ProfileID != profileID {
		return false, nil
	}
	delete(s.items, itemID)
	delete(s.order, itemID)
	return true, nil
}

func (s *MemoryStore) RepositionItems(_ context.Context, profileID string, placements []Placement) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	now := s.now()
	for _, placement := range placements {
		item, ok := s.items[placement.ID]
		if !ok || item.ProfileID != profileID {
			continue
		}
		item.Position = placement.Position
		item.UpdatedAt = now
		s.items[placement.ID] = item
		updated++
	}
	return updated, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
