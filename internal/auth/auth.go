// Package auth persists the signed-in user and token that select the
// storage partition. Sign-in UI flows live elsewhere.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/abhisek/studylog/internal/logger"
	"github.com/abhisek/studylog/internal/safejson"
	"github.com/abhisek/studylog/internal/store"
)

const (
	UserKey       = "user_data"
	LegacyUserKey = "USER"
	TokenKey      = "auth_token"
)

var (
	ErrNotSignedIn  = errors.New("not signed in")
	ErrInvalidToken = errors.New("invalid or empty token")
	ErrInvalidUser  = errors.New("user requires id and email")
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PhotoURL     string     `json:"photoUrl,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
}

// Valid reports whether u carries the fields a partition needs.
func (u *User) Valid() bool {
	return u != nil && u.ID != "" && u.Email != ""
}

// Sessions reads and writes the auth records in the key-value medium.
type Sessions struct {
	kv  store.KV
	log *logger.Logger
	now func() time.Time
}

func NewSessions(kv store.KV, log *logger.Logger, now func() time.Time) *Sessions {
	if log == nil {
		log = logger.Nop()
	}
	if now == nil {
		now = time.Now
	}
	return &Sessions{kv: kv, log: log, now: now}
}

// Load returns the stored user, or nil when signed out. A stored record
// that is present but structurally invalid clears both auth keys.
func (s *Sessions) Load(ctx context.Context) (*User, error) {
	for _, key := range []string{UserKey, LegacyUserKey} {
		raw, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			s.log.Warn("read user record failed, clearing", "key", key, "error", err)
			return nil, s.clear(ctx)
		}
		if !ok {
			continue
		}
		u := safejson.SafeParseString[*User](raw, true, nil)
		if u.Valid() {
			return u, nil
		}
		s.log.Warn("invalid user data structure, clearing", "key", key, "preview", safejson.Preview(raw))
		return nil, s.clear(ctx)
	}
	return nil, nil
}

// Token returns the stored auth token, or "" when absent.
func (s *Sessions) Token(ctx context.Context) (string, error) {
	raw, ok, err := s.kv.Get(ctx, TokenKey)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return safejson.SafeParseString(raw, ok, ""), nil
}

// SignIn persists user and token.
func (s *Sessions) SignIn(ctx context.Context, u User, token string) error {
	if !u.Valid() {
		return ErrInvalidUser
	}
	if strings.TrimSpace(token) == "" {
		return ErrInvalidToken
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	userJSON, err := safejson.Marshal(u)
	if err != nil {
		return err
	}
	tokenJSON, err := safejson.Marshal(token)
	if err != nil {
		return err
	}
	if err := s.kv.MultiSet(ctx, []store.Pair{
		{Key: UserKey, Value: userJSON},
		{Key: TokenKey, Value: tokenJSON},
	}); err != nil {
		return fmt.Errorf("persist sign-in: %w", err)
	}
	s.log.Info("signed in", "user_id", u.ID, "email", u.Email)
	return nil
}

// SignInWithIDToken builds the user from an OAuth ID token's claims and
// persists it with the token. The token's signature is not checked here;
// the identity provider that issued it is responsible for that.
func (s *Sessions) SignInWithIDToken(ctx context.Context, idToken string) (*User, error) {
	u, err := UserFromIDToken(idToken)
	if err != nil {
		return nil, err
	}
	if err := s.SignIn(ctx, *u, idToken); err != nil {
		return nil, err
	}
	return u, nil
}

// UserFromIDToken extracts sub, email, name and picture claims.
func UserFromIDToken(idToken string) (*User, error) {
	tok, _, err := jwt.NewParser().ParseUnverified(idToken, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := claims.GetSubject()
	u := &User{
		ID:       sub,
		Email:    stringClaim(claims, "email"),
		Name:     stringClaim(claims, "name"),
		PhotoURL: stringClaim(claims, "picture"),
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		u.CreatedAt = iat.UTC()
	}
	if !u.Valid() {
		return nil, ErrInvalidUser
	}
	return u, nil
}

func stringClaim(c jwt.MapClaims, name string) string {
	v, _ := c[name].(string)
	return v
}

// SignOut removes the user and token.
func (s *Sessions) SignOut(ctx context.Context) error {
	if err := s.clear(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Sync stamps lastSyncedAt on the stored user. It needs a stored token.
func (s *Sessions) Sync(ctx context.Context) (*User, error) {
	u, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotSignedIn
	}
	token, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	now := s.now().UTC()
	u.LastSyncedAt = &now
	raw, err := safejson.Marshal(u)
	if err != nil {
		return nil, err
	}
	if err := s.kv.Set(ctx, UserKey, raw); err != nil {
		return nil, fmt.Errorf("persist sync time: %w", err)
	}
	return u, nil
}

func (s *Sessions) clear(ctx context.Context) error {
	return s.kv.MultiRemove(ctx, []string{UserKey, LegacyUserKey, TokenKey})
}
