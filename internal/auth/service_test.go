package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatewise/gatewise/internal/directory"
	"github.com/gatewise/gatewise/internal/shared"
	_ "github.com/gatewise/gatewise/testing"
)

type fakeDirectory struct {
	nextID int64
	users  map[int64]*directory.User
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: make(map[int64]*directory.User)}
}

func (f *fakeDirectory) Create(ctx context.Context, email, name, passwordHash string, role shared.Role) (*directory.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return nil, fmt.Errorf("email already registered: %w", shared.ErrValidation)
		}
	}
	f.nextID++
	user := &directory.User{
		ID:           f.nextID,
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeDirectory) FindByID(ctx context.Context, id int64) (*directory.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
	}
	return user, nil
}

func (f *fakeDirectory) FindByEmail(ctx context.Context, email string) (*directory.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, fmt.Errorf("email %s: %w", email, shared.ErrNotFound)
}

type authEnv struct {
	service *Service
	dir     *fakeDirectory
	redis   *miniredis.Miniredis
}

func newAuthEnv(t *testing.T, ttl time.Duration) *authEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	dir := newFakeDirectory()
	return &authEnv{
		service: NewService(dir, NewTokenStore(client, ttl)),
		dir:     dir,
		redis:   mr,
	}
}

func TestRegisterCreatesUserRoleAccount(t *testing.T) {
	env := newAuthEnv(t, time.Hour)

	user, err := env.service.Register(context.Background(), "alice@test.local", "Alice", "s3cret-pass")
	require.NoError(t, err)

	assert.Equal(t, shared.RoleUser, user.Role)
	assert.True(t, user.Permissions.Empty(), "new accounts start with no flags")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret-pass")))
}

func TestRegisterDuplicateEmailRejected(t *testing.T) {
	env := newAuthEnv(t, time.Hour)

	_, err := env.service.Register(context.Background(), "alice@test.local", "Alice", "s3cret-pass")
	require.NoError(t, err)

	_, err = env.service.Register(context.Background(), "alice@test.local", "Alice Again", "other-pass")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestLoginIssuesResolvableToken(t *testing.T) {
	env := newAuthEnv(t, time.Hour)
	_, err := env.service.Register(context.Background(), "alice@test.local", "Alice", "s3cret-pass")
	require.NoError(t, err)

	user, token, err := env.service.Login(context.Background(), "alice@test.local", "s3cret-pass")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identity, err := env.service.ResolveIdentity(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, identity.UserID)
	assert.Equal(t, "alice@test.local", identity.Email)
	assert.Equal(t, shared.RoleUser, identity.Role)
}

func TestLoginWrongPasswordUnauthenticated(t *testing.T) {
	env := newAuthEnv(t, time.Hour)
	_, err := env.service.Register(context.Background(), "alice@test.local", "Alice", "s3cret-pass")
	require.NoError(t, err)

	_, _, err = env.service.Login(context.Background(), "alice@test.local", "wrong-pass")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, _, err = env.service.Login(context.Background(), "nobody@test.local", "s3cret-pass")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestLoginDisabledAccountUnauthenticated(t *testing.T) {
	env := newAuthEnv(t, time.Hour)
	user, err := env.service.Register(context.Background(), "alice@test.local", "Alice", "s3cret-pass")
	require.NoError(t, err)
	env.dir.users[user.ID].IsActive = false

	_, _, err = env.service.Login(context.Background(), "alice@test.local", "s3cret-pass")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newAuthEnv(t, time.Hour)
	_, err := env.service.Register(context.Background(), "alice@test.local", "Alice", "s3cret-pass")
	require.NoError(t, err)

	_, token, err := env.service.Login(context.Background(), "alice@test.local", "s3cret-pass")
	require.NoError(t, err)

	require.NoError(t, env.service.Logout(context.Background(), token))

	_, err = env.service.ResolveIdentity(context.Background(), token)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	// Revoking again is a no-op.
	require.NoError(t, env.service.Logout(context.Background(), token))
}

func TestResolveIdentityUnknownToken(t *testing.T) {
	env := newAuthEnv(t, time.Hour)

	_, err := env.service.ResolveIdentity(context.Background(), "no-such-token")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, err = env.service.ResolveIdentity(context.Background(), "")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestResolveIdentityExpiredToken(t *testing.T) {
	env := newAuthEnv(t, time.Minute)
	_, err := env.service.Register(context.Background(), "alice@test.local", "Alice", "s3cret-pass")
	require.NoError(t, err)

	_, token, err := env.service.Login(context.Background(), "alice@test.local", "s3cret-pass")
	require.NoError(t, err)

	env.redis.FastForward(2 * time.Minute)

	_, err = env.service.ResolveIdentity(context.Background(), token)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestResolveIdentityReflectsCurrentPermissions(t *testing.T) {
	env := newAuthEnv(t, time.Hour)
	user, err := env.service.Register(context.Background(), "alice@test.local", "Alice", "s3cret-pass")
	require.NoError(t, err)

	_, token, err := env.service.Login(context.Background(), "alice@test.local", "s3cret-pass")
	require.NoError(t, err)

	// Flags are read from the directory per request, not baked into the
	// token, so a grant made after login is visible immediately.
	env.dir.users[user.ID].Permissions = shared.Permissions{CanAdd: true}

	identity, err := env.service.ResolveIdentity(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, identity.Permissions.CanAdd)
}
