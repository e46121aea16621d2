package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulachat/nebula/internal/kv"
	"github.com/nebulachat/nebula/internal/log"
)

func newTestStore(t *testing.T, demoLogin bool) (*Store, kv.Store) {
	t.Helper()
	storage := kv.NewMemory()
	store, err := New(Config{KV: storage, Logger: log.NewNop(), DemoLogin: demoLogin})
	require.NoError(t, err)
	return store, storage
}

func TestStore_SignUp(t *testing.T) {
	t.Run("creates account and activates session", func(t *testing.T) {
		store, _ := newTestStore(t, false)

		user, session, err := store.SignUp("alice@example.com", "secret")
		require.NoError(t, err)

		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, "user", user.Role)
		assert.Equal(t, user.ID, session.UserID)
		assert.NotEmpty(t, session.Token)

		current := store.CurrentUser()
		require.NotNil(t, current)
		assert.Equal(t, user.ID, current.ID)
	})

	t.Run("empty email fails before touching storage", func(t *testing.T) {
		store, storage := newTestStore(t, false)

		_, _, err := store.SignUp("", "secret")
		assert.ErrorIs(t, err, ErrValidation)

		_, ok, err := storage.Get(kv.KeyRegisteredUsers)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, store.CurrentUser())
	})

	t.Run("empty password fails before touching storage", func(t *testing.T) {
		store, storage := newTestStore(t, false)

		_, _, err := store.SignUp("alice@example.com", "")
		assert.ErrorIs(t, err, ErrValidation)

		_, ok, err := storage.Get(kv.KeyRegisteredUsers)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		store, _ := newTestStore(t, false)

		_, _, err := store.SignUp("alice@example.com", "secret")
		require.NoError(t, err)

		_, _, err = store.SignUp("alice@example.com", "other")
		assert.ErrorIs(t, err, ErrEmailTaken)
	})
}

func TestStore_SignIn(t *testing.T) {
	t.Run("registered account signs in with stable identity", func(t *testing.T) {
		store, _ := newTestStore(t, false)

		created, _, err := store.SignUp("alice@example.com", "secret")
		require.NoError(t, err)
		require.NoError(t, store.SignOut())

		user, session, err := store.SignIn("alice@example.com", "secret")
		require.NoError(t, err)
		assert.Equal(t, created.ID, user.ID)
		assert.Equal(t, user.ID, session.UserID)
	})

	t.Run("unknown email reports account not found", func(t *testing.T) {
		store, _ := newTestStore(t, false)

		_, _, err := store.SignIn("nobody@example.com", "whatever")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("wrong password reports invalid credentials", func(t *testing.T) {
		store, _ := newTestStore(t, false)

		_, _, err := store.SignUp("alice@example.com", "secret")
		require.NoError(t, err)

		_, _, err = store.SignIn("alice@example.com", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("each sign-in issues a fresh token", func(t *testing.T) {
		store, _ := newTestStore(t, false)

		_, _, err := store.SignUp("alice@example.com", "secret")
		require.NoError(t, err)

		_, first, err := store.SignIn("alice@example.com", "secret")
		require.NoError(t, err)
		_, second, err := store.SignIn("alice@example.com", "secret")
		require.NoError(t, err)
		assert.NotEqual(t, first.Token, second.Token)
	})
}

func TestStore_SignOut(t *testing.T) {
	store, _ := newTestStore(t, false)

	_, _, err := store.SignUp("alice@example.com", "secret")
	require.NoError(t, err)
	require.NotNil(t, store.CurrentSession())

	require.NoError(t, store.SignOut())

	assert.Nil(t, store.CurrentUser())
	assert.Nil(t, store.CurrentSession())

	// Signing out keeps the registry: the account can sign back in.
	_, _, err = store.SignIn("alice@example.com", "secret")
	require.NoError(t, err)
}

func TestStore_OnAuthStateChanged(t *testing.T) {
	t.Run("reports existing session", func(t *testing.T) {
		store, _ := newTestStore(t, false)
		user, _, err := store.SignUp("alice@example.com", "secret")
		require.NoError(t, err)

		var gotAuthenticated bool
		var gotSession *Session
		store.OnAuthStateChanged(func(authenticated bool, session *Session) {
			gotAuthenticated = authenticated
			gotSession = session
		})

		assert.True(t, gotAuthenticated)
		require.NotNil(t, gotSession)
		assert.Equal(t, user.ID, gotSession.UserID)
	})

	t.Run("reports unauthenticated without demo login", func(t *testing.T) {
		store, _ := newTestStore(t, false)

		called := 0
		store.OnAuthStateChanged(func(authenticated bool, session *Session) {
			called++
			assert.False(t, authenticated)
			assert.Nil(t, session)
		})
		assert.Equal(t, 1, called)
	})

	t.Run("provisions demo session when enabled", func(t *testing.T) {
		store, _ := newTestStore(t, true)

		var gotSession *Session
		store.OnAuthStateChanged(func(authenticated bool, session *Session) {
			assert.True(t, authenticated)
			gotSession = session
		})

		require.NotNil(t, gotSession)
		assert.Equal(t, DemoUserID, gotSession.UserID)

		user := store.CurrentUser()
		require.NotNil(t, user)
		assert.Equal(t, DemoUserEmail, user.Email)
	})

	t.Run("demo login does not replace an existing session", func(t *testing.T) {
		store, _ := newTestStore(t, true)
		user, _, err := store.SignUp("alice@example.com", "secret")
		require.NoError(t, err)

		var gotSession *Session
		store.OnAuthStateChanged(func(_ bool, session *Session) {
			gotSession = session
		})

		require.NotNil(t, gotSession)
		assert.Equal(t, user.ID, gotSession.UserID)
	})
}

func TestStore_SessionPersistsAcrossInstances(t *testing.T) {
	storage := kv.NewMemory()

	first, err := New(Config{KV: storage, Logger: log.NewNop()})
	require.NoError(t, err)
	user, _, err := first.SignUp("alice@example.com", "secret")
	require.NoError(t, err)

	second, err := New(Config{KV: storage, Logger: log.NewNop()})
	require.NoError(t, err)
	current := second.CurrentUser()
	require.NotNil(t, current)
	assert.Equal(t, user.ID, current.ID)
}
