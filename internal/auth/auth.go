// Package auth is the mock session store: it fabricates users and opaque
// session tokens over durable key-value storage. There is no security
// model here: credentials are kept in plaintext and exist only so the
// register-then-login flow of the demo behaves like a real one.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nebulachat/nebula/internal/kv"
	"github.com/nebulachat/nebula/internal/log"
)

// Demo identity provisioned when no session exists and demo login is
// enabled.
const (
	DemoUserID    = "demo_user"
	DemoUserEmail = "demo@example.com"
	demoToken     = "demo_token"
)

// defaultRole is the role assigned to every account in this mock.
const defaultRole = "user"

// Sentinel errors for session-store operations.
var (
	// ErrValidation indicates a required sign-up field is missing.
	ErrValidation = errors.New("validation failed")

	// ErrEmailTaken indicates sign-up with an already registered email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrAccountNotFound indicates sign-in with an unregistered email.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidCredentials indicates sign-in with a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// User is an account identity. Immutable once created.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is the authenticated identity bound to the current process.
type Session struct {
	UserID string
	Token  string
}

// Credentials is one registry record. Plaintext password, mock only.
type Credentials struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Subscription is the disposable handle returned by OnAuthStateChanged.
// Disposal is a no-op: the auth state is emitted exactly once at
// registration, never as a live stream.
type Subscription struct{}

// Unsubscribe releases the subscription.
func (Subscription) Unsubscribe() {}

// Store manages the current session and the sign-up registry. Exactly one
// session is active per process.
type Store struct {
	kv        kv.Store
	logger    log.Logger
	demoLogin bool
}

// Config contains the Store's dependencies.
type Config struct {
	KV     kv.Store
	Logger log.Logger

	// DemoLogin auto-provisions a demo session in OnAuthStateChanged when
	// no session exists, instead of reporting unauthenticated. A demo
	// deployment convenience, preserved from the original behavior.
	DemoLogin bool
}

// New creates a session store.
func New(cfg Config) (*Store, error) {
	if cfg.KV == nil {
		return nil, errors.New("kv store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Store{kv: cfg.KV, logger: logger, demoLogin: cfg.DemoLogin}, nil
}

// SignUp registers a new account and activates a session for it.
// Empty email or password fails with ErrValidation and leaves durable
// storage untouched.
func (s *Store) SignUp(email, password string) (*User, *Session, error) {
	if email == "" {
		return nil, nil, fmt.Errorf("%w: email is required", ErrValidation)
	}
	if password == "" {
		return nil, nil, fmt.Errorf("%w: password is required", ErrValidation)
	}

	registry, err := s.registry()
	if err != nil {
		return nil, nil, err
	}
	for _, rec := range registry {
		if rec.Email == email {
			return nil, nil, fmt.Errorf("%w: %s", ErrEmailTaken, email)
		}
	}

	user := &User{ID: uuid.NewString(), Email: email, Role: defaultRole}
	registry = append(registry, Credentials{ID: user.ID, Email: email, Password: password})
	if err := s.saveRegistry(registry); err != nil {
		return nil, nil, err
	}

	session, err := s.activate(user, uuid.NewString())
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("signed up", "user_id", user.ID, "email", email)
	return user, session, nil
}

// SignIn activates a session for a registered account. Unknown email fails
// with ErrAccountNotFound (the register-then-login contract is intentional
// product behavior, enforced here rather than in the presentation layer);
// a wrong password fails with ErrInvalidCredentials.
func (s *Store) SignIn(email, password string) (*User, *Session, error) {
	registry, err := s.registry()
	if err != nil {
		return nil, nil, err
	}

	for _, rec := range registry {
		if rec.Email != email {
			continue
		}
		if rec.Password != password {
			return nil, nil, ErrInvalidCredentials
		}
		user := &User{ID: rec.ID, Email: rec.Email, Role: defaultRole}
		session, err := s.activate(user, uuid.NewString())
		if err != nil {
			return nil, nil, err
		}
		s.logger.Info("signed in", "user_id", user.ID)
		return user, session, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrAccountNotFound, email)
}

// SignOut clears the active session. Chat data is left untouched; the
// clean-slate wipe on logout is a separate, caller-driven policy.
func (s *Store) SignOut() error {
	if err := s.kv.Delete(kv.KeyUser); err != nil {
		return fmt.Errorf("clearing user: %w", err)
	}
	if err := s.kv.Delete(kv.KeyToken); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	s.logger.Info("signed out")
	return nil
}

// CurrentUser returns the active session's user, or nil when no session
// exists. Synchronous read of durable storage.
func (s *Store) CurrentUser() *User {
	data, ok, err := s.kv.Get(kv.KeyUser)
	if err != nil || !ok {
		return nil
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		s.logger.Warn("decoding stored user", "error", err)
		return nil
	}
	return &user
}

// CurrentSession returns the active session, or nil when no session
// exists.
func (s *Store) CurrentSession() *Session {
	user := s.CurrentUser()
	if user == nil {
		return nil
	}
	token, ok, err := s.kv.Get(kv.KeyToken)
	if err != nil || !ok {
		return nil
	}
	return &Session{UserID: user.ID, Token: string(token)}
}

// OnAuthStateChanged delivers exactly one notification representing the
// session state at registration time: (true, session) or (false, nil).
// When no session exists and demo login is enabled, a demo session is
// provisioned first, so demo deployments never start unauthenticated.
func (s *Store) OnAuthStateChanged(fn func(authenticated bool, session *Session)) Subscription {
	session := s.CurrentSession()

	if session == nil && s.demoLogin {
		demo := &User{ID: DemoUserID, Email: DemoUserEmail, Role: defaultRole}
		var err error
		session, err = s.activate(demo, demoToken)
		if err != nil {
			s.logger.Warn("provisioning demo session", "error", err)
		} else {
			s.logger.Info("provisioned demo session", "user_id", demo.ID)
		}
	}

	fn(session != nil, session)
	return Subscription{}
}

// activate persists user and token as the current session.
func (s *Store) activate(user *User, token string) (*Session, error) {
	data, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("encoding user: %w", err)
	}
	if err := s.kv.Set(kv.KeyUser, data); err != nil {
		return nil, fmt.Errorf("persisting user: %w", err)
	}
	if err := s.kv.Set(kv.KeyToken, []byte(token)); err != nil {
		return nil, fmt.Errorf("persisting token: %w", err)
	}
	return &Session{UserID: user.ID, Token: token}, nil
}

func (s *Store) registry() ([]Credentials, error) {
	data, ok, err := s.kv.Get(kv.KeyRegisteredUsers)
	if err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var registry []Credentials
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("decoding registry: %w", err)
	}
	return registry, nil
}

func (s *Store) saveRegistry(registry []Credentials) error {
	data, err := json.Marshal(registry)
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}
	if err := s.kv.Set(kv.KeyRegisteredUsers, data); err != nil {
		return fmt.Errorf("persisting registry: %w", err)
	}
	return nil
}
