// Package auth signs users up and in, issues bearer tokens and keeps the
// server-side session records that make sign-out immediate.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/phillip/haojiu-go/logger"
	"github.com/phillip/haojiu-go/models"
	"github.com/phillip/haojiu-go/store"
)

const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Session is the signed-in identity attached to a request. It lives from
// sign-in until sign-out or expiry.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Nickname  string    `json:"nickname"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == models.RoleAdmin
}

// Credential is returned by SignUp and SignIn.
type Credential struct {
	Token   string       `json:"token"`
	Session *Session     `json:"session"`
	User    *models.User `json:"user"`
}

// StateChange is delivered to OnAuthStateChange listeners.
type StateChange struct {
	Session  *Session
	SignedIn bool
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Service struct {
	store  store.Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	listeners map[int]func(StateChange)
	nextID    int
}

func NewService(s store.Store, secret string, ttl time.Duration) *Service {
	return &Service{
		store:     s,
		secret:    []byte(secret),
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
		listeners: map[int]func(StateChange){},
	}
}

// ---------------- SIGN UP / SIGN IN ----------------

func (a *Service) SignUp(ctx context.Context, email, password, nickname string) (*Credential, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	if _, err := a.findByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:               primitive.NewObjectID().Hex(),
		Email:            email,
		PasswordHash:     string(hash),
		Role:             models.RoleUser,
		Profile:          models.DefaultProfile(),
		Friends:          []models.Contact{},
		IncomingRequests: []models.Contact{},
		OutgoingRequests: []models.Contact{},
		Groups:           []models.Group{},
		CreatedAt:        a.now(),
	}
	if nick := strings.TrimSpace(nickname); nick != "" {
		user.Profile.Nickname = nick
	}

	err = a.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var claim models.EmailClaim
		if err := tx.Get(ctx, store.Emails, email, &claim); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.Set(ctx, store.Emails, email, models.EmailClaim{UserID: user.ID}); err != nil {
			return err
		}
		return tx.Set(ctx, store.Users, user.ID, user)
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) || mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	logger.Info.Printf("[auth] user %s signed up", user.ID)
	return a.startSession(ctx, user)
}

func (a *Service) SignIn(ctx context.Context, email, password string) (*Credential, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	user, err := a.findByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return a.startSession(ctx, user)
}

func (a *Service) startSession(ctx context.Context, user *models.User) (*Credential, error) {
	now := a.now()
	rec := models.SessionRecord{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(a.ttl),
	}
	if err := a.store.Set(ctx, store.Sessions, rec.ID, rec); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	claims := Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        rec.ID,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(rec.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	sess := newSession(rec, user)
	a.notify(StateChange{Session: sess, SignedIn: true})
	return &Credential{Token: token, Session: sess, User: user}, nil
}

// ---------------- SESSIONS ----------------

// Authenticate resolves a bearer token to its live session. The role is
// read from the user document, so promotions apply without a new token.
func (a *Service) Authenticate(ctx context.Context, token string) (*Session, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var rec models.SessionRecord
	if err := a.store.Get(ctx, store.Sessions, claims.ID, &rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: session ended", ErrInvalidToken)
		}
		return nil, err
	}
	if rec.UserID != claims.Subject || !a.now().Before(rec.ExpiresAt) {
		return nil, fmt.Errorf("%w: session expired", ErrInvalidToken)
	}

	var user models.User
	if err := a.store.Get(ctx, store.Users, rec.UserID, &user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: user gone", ErrInvalidToken)
		}
		return nil, err
	}
	return newSession(rec, &user), nil
}

// SignOut deletes the session record. Signing out twice is not an error.
func (a *Service) SignOut(ctx context.Context, sess *Session) error {
	err := a.store.Delete(ctx, store.Sessions, sess.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("sign out: %w", err)
	}
	if err == nil {
		a.notify(StateChange{Session: sess})
	}
	return nil
}

// OnAuthStateChange registers fn for every sign-in and sign-out. The
// returned func removes it.
func (a *Service) OnAuthStateChange(fn func(StateChange)) func() {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.listeners[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

func (a *Service) notify(ch StateChange) {
	a.mu.Lock()
	fns := make([]func(StateChange), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}

func (a *Service) findByEmail(ctx context.Context, email string) (*models.User, error) {
	var users []models.User
	if err := a.store.Find(ctx, store.Users, store.Where("email", email).Take(1), &users); err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%s: %w", email, store.ErrNotFound)
	}
	return &users[0], nil
}

func newSession(rec models.SessionRecord, user *models.User) *Session {
	return &Session{
		ID:        rec.ID,
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		Nickname:  user.Profile.Nickname,
		ExpiresAt: rec.ExpiresAt,
	}
}

func normalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}
