package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/shoppingcart/internal/cache/memory"
	"github.com/prn-tf/shoppingcart/internal/domain"
	"github.com/prn-tf/shoppingcart/internal/lock"
	"github.com/prn-tf/shoppingcart/internal/pkg/crypto"
	"github.com/prn-tf/shoppingcart/internal/repository"
	"github.com/prn-tf/shoppingcart/internal/repository/sqlite"
)

func TestMain(m *testing.M) {
	_ = crypto.SetBcryptCost(bcrypt.MinCost)
	m.Run()
}

type testEnv struct {
	users   *UserService
	roles   *RoleService
	repos   *repository.Repositories
	cache   *memory.Cache
	locker  *lock.MemoryLocker
	metrics *Metrics
}

func newTestEnv(t *testing.T, cfg UserServiceConfig) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(filepath.Join(t.TempDir(), "shop.db")), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))

	repos := sqlite.NewRepositories(db)

	c := memory.NewCache(time.Minute)
	t.Cleanup(c.Stop)

	locker := lock.NewMemoryLocker()
	t.Cleanup(locker.Close)

	metrics := NewMetrics(prometheus.NewRegistry())
	roles := NewRoleService(repos.Role, c, time.Minute, locker, metrics, zerolog.Nop())
	require.NoError(t, roles.EnsureDefaults(ctx))

	if cfg.DefaultRoles == nil {
		cfg.DefaultRoles = []string{"user"}
	}
	users := NewUserService(repos.User, repos.Cart, roles, locker, metrics, cfg, zerolog.Nop())

	return &testEnv{users: users, roles: roles, repos: repos, cache: c, locker: locker, metrics: metrics}
}

func (e *testEnv) create(t *testing.T, username, password string, roles ...string) *domain.UserAccount {
	t.Helper()
	out, err := e.users.Create(context.Background(), CreateUserInput{
		Username: username,
		Password: password,
		Roles:    roles,
	})
	require.NoError(t, err)
	return out.User
}

func TestUserService_Create(t *testing.T) {
	tests := []struct {
		name            string
		input           CreateUserInput
		wantAuthorities []string
		wantErr         []error
	}{
		{
			name:            "default roles",
			input:           CreateUserInput{Username: "misskitty", Password: "ILuvM4th!"},
			wantAuthorities: []string{"ROLE_USER"},
		},
		{
			name:            "explicit roles in order",
			input:           CreateUserInput{Username: "admin", Password: "secret", Roles: []string{"admin", "user"}},
			wantAuthorities: []string{"ROLE_ADMIN", "ROLE_USER"},
		},
		{
			name:            "duplicate role names collapse",
			input:           CreateUserInput{Username: "data-person", Password: "secret", Roles: []string{"data", "data"}},
			wantAuthorities: []string{"ROLE_DATA"},
		},
		{
			name:            "short password accepted without policy",
			input:           CreateUserInput{Username: "shorty", Password: "ab"},
			wantAuthorities: []string{"ROLE_USER"},
		},
		{
			name:    "username too short",
			input:   CreateUserInput{Username: "x", Password: "secret"},
			wantErr: []error{ErrValidation, domain.ErrInvalidUsername},
		},
		{
			name:    "username too long",
			input:   CreateUserInput{Username: strings.Repeat("x", 31), Password: "secret"},
			wantErr: []error{ErrValidation, domain.ErrInvalidUsername},
		},
		{
			name:    "password too long to hash",
			input:   CreateUserInput{Username: "verbose", Password: strings.Repeat("p", 73)},
			wantErr: []error{ErrValidation},
		},
		{
			name:    "unknown role",
			input:   CreateUserInput{Username: "ghost", Password: "secret", Roles: []string{"wizard"}},
			wantErr: []error{ErrRoleNotFound},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, UserServiceConfig{})
			ctx := context.Background()

			out, err := env.users.Create(ctx, tt.input)
			if len(tt.wantErr) > 0 {
				require.Error(t, err)
				for _, want := range tt.wantErr {
					assert.ErrorIs(t, err, want)
				}
				exists, err := env.repos.User.ExistsByUsername(ctx, tt.input.Username)
				require.NoError(t, err)
				assert.False(t, exists)
				return
			}

			require.NoError(t, err)
			user := out.User
			assert.NotZero(t, user.ID)
			assert.NotEqual(t, tt.input.Password, user.CredentialHash())
			assert.Equal(t, tt.wantAuthorities, user.Authorities())

			stored, err := env.users.GetByUsername(ctx, tt.input.Username)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAuthorities, stored.Authorities())
			assert.True(t, stored.VerifyCredential(tt.input.Password))
		})
	}
}

func TestUserService_Create_PasswordPolicy(t *testing.T) {
	env := newTestEnv(t, UserServiceConfig{EnforcePasswordPolicy: true})
	ctx := context.Background()

	_, err := env.users.Create(ctx, CreateUserInput{Username: "shorty", Password: "abc"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, domain.ErrInvalidPassword)

	_, err = env.users.Create(ctx, CreateUserInput{Username: "shorty", Password: "abcd"})
	assert.NoError(t, err)
}

func TestUserService_Create_Duplicate(t *testing.T) {
	env := newTestEnv(t, UserServiceConfig{})
	env.create(t, "puttat", "secret")

	_, err := env.users.Create(context.Background(), CreateUserInput{Username: "puttat", Password: "other"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.AccountsCreated))
}

func TestUserService_Create_ConcurrentSameUsername(t *testing.T) {
	env := newTestEnv(t, UserServiceConfig{})

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.users.Create(context.Background(), CreateUserInput{Username: "stumps", Password: "secret"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrUserAlreadyExists) || errors.Is(err, ErrUserBusy), err)
	}
	assert.Equal(t, 1, succeeded)
}

func TestUserService_Authenticate(t *testing.T) {
	env := newTestEnv(t, UserServiceConfig{})
	ctx := context.Background()
	created := env.create(t, "barnbarn", "ILuvM4th!")

	user, err := env.users.Authenticate(ctx, "barnbarn", "ILuvM4th!")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	_, err = env.users.Authenticate(ctx, "barnbarn", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.users.Authenticate(ctx, "nobody", "ILuvM4th!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	auths := env.metrics.Authentications
	assert.Equal(t, 1.0, testutil.ToFloat64(auths.WithLabelValues(authResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(auths.WithLabelValues(authResultBadPassword)))
	assert.Equal(t, 1.0, testutil.ToFloat64(auths.WithLabelValues(authResultUnknownUser)))
}

func TestUserService_GetAndAuthorities(t *testing.T) {
	env := newTestEnv(t, UserServiceConfig{})
	ctx := context.Background()
	user := env.create(t, "cinnamon", "secret", "admin", "user")

	auths, err := env.users.Authorities(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_ADMIN", "ROLE_USER"}, auths)

	_, err = env.users.GetByID(ctx, user.ID+100)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = env.users.Authorities(ctx, user.ID+100)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = env.users.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_Authorities_NoRoles(t *testing.T) {
	env := newTestEnv(t, UserServiceConfig{DefaultRoles: []string{}})
	user := env.create(t, "loner", "secret")

	auths, err := env.users.Authorities(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NotNil(t, auths)
	assert.Empty(t, auths)
}

func TestUserService_UpdateProfile(t *testing.T) {
	env := newTestEnv(t, UserServiceConfig{})
	ctx := context.Background()
	user := env.create(t, "alpha", "secret")
	env.create(t, "bravo", "secret")

	comments := "prefers express shipping"
	updated, err := env.users.UpdateProfile(ctx, UpdateProfileInput{UserID: user.ID, Comments: &comments})
	require.NoError(t, err)
	assert.Equal(t, comments, updated.Comments)
	assert.Equal(t, "alpha", updated.Username)

	taken := "bravo"
	_, err = env.users.UpdateProfile(ctx, UpdateProfileInput{UserID: user.ID, Username: &taken})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	invalid := "a"
	_, err = env.users.UpdateProfile(ctx, UpdateProfileInput{UserID: user.ID, Username: &invalid})
	assert.ErrorIs(t, err, ErrValidation)

	renamed := "charlie"
	updated, err = env.users.UpdateProfile(ctx, UpdateProfileInput{UserID: user.ID, Username: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "charlie", updated.Username)

	_, err = env.users.GetByUsername(ctx, "alpha")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = env.users.UpdateProfile(ctx, UpdateProfileInput{UserID: 999, Comments: &comments})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_SetCredential(t *testing.T) {
	env := newTestEnv(t, UserServiceConfig{})
	ctx := context.Background()
	user := env.create(t, "rotator", "first")
	oldHash := user.CredentialHash()

	wrong := "nope"
	err := env.users.SetCredential(ctx, SetCredentialInput{UserID: user.ID, CurrentPassword: &wrong, NewPassword: "second"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	current := "first"
	require.NoError(t, env.users.SetCredential(ctx, SetCredentialInput{UserID: user.ID, CurrentPassword: &current, NewPassword: "second"}))

	stored, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, oldHash, stored.CredentialHash())

	_, err = env.users.Authenticate(ctx, "rotator", "first")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.users.Authenticate(ctx, "rotator", "second")
	assert.NoError(t, err)

	// Same plaintext again still produces a fresh hash.
	require.NoError(t, env.users.SetCredential(ctx, SetCredentialInput{UserID: user.ID, NewPassword: "second"}))
	again, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, stored.CredentialHash(), again.CredentialHash())

	assert.Equal(t, 3.0, testutil.ToFloat64(env.metrics.CredentialHashes))
}

func TestUserService_GrantAndRevokeRole(t *testing.T) {
	env := newTestEnv(t, UserServiceConfig{})
	ctx := context.Background()
	user := env.create(t, "promoted", "secret")

	updated, err := env.users.GrantRole(ctx, user.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_USER", "ROLE_ADMIN"}, updated.Authorities())

	_, err = env.users.GrantRole(ctx, user.ID, "admin")
	assert.ErrorIs(t, err, ErrRoleAlreadyGranted)

	_, err = env.users.GrantRole(ctx, user.ID, "wizard")
	assert.ErrorIs(t, err, ErrRoleNotFound)

	updated, err = env.users.RevokeRole(ctx, user.ID, "user")
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_ADMIN"}, updated.Authorities())

	_, err = env.users.RevokeRole(ctx, user.ID, "user")
	assert.ErrorIs(t, err, ErrRoleNotAssigned)

	auths, err := env.users.Authorities(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_ADMIN"}, auths)
}

func TestUserService_Carts(t *testing.T) {
	env := newTestEnv(t, UserServiceConfig{})
	ctx := context.Background()
	user := env.create(t, "shopper", "secret")

	first, err := env.users.AddCart(ctx, user.ID)
	require.NoError(t, err)
	second, err := env.users.AddCart(ctx, user.ID)
	require.NoError(t, err)

	_, err = env.users.AddCart(ctx, user.ID+100)
	assert.ErrorIs(t, err, ErrUserNotFound)

	carts, err := env.users.ListCarts(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, carts, 2)
	assert.Equal(t, first.ID, carts[0].ID)

	require.NoError(t, env.users.RemoveCart(ctx, user.ID, first.ID))
	assert.ErrorIs(t, env.users.RemoveCart(ctx, user.ID, first.ID), ErrCartNotFound)

	stored, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, stored.Carts, 1)
	assert.Equal(t, second.ID, stored.Carts[0].ID)
}

func TestUserService_AddCart_ConcurrentWithRoleChanges(t *testing.T) {
	env := newTestEnv(t, UserServiceConfig{LockTTL: 5 * time.Second})
	ctx := context.Background()
	user := env.create(t, "busybee", "secret")

	const carts = 5
	var wg sync.WaitGroup
	errs := make(chan error, carts+2)

	for i := 0; i < carts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.users.AddCart(ctx, user.ID)
			errs <- err
		}()
	}
	for _, role := range []string{"admin", "data"} {
		wg.Add(1)
		go func(role string) {
			defer wg.Done()
			_, err := env.users.GrantRole(ctx, user.ID, role)
			errs <- err
		}(role)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := env.users.ListCarts(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, stored, carts)

	auths, err := env.users.Authorities(ctx, user.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ROLE_USER", "ROLE_ADMIN", "ROLE_DATA"}, auths)
}

func TestUserService_Carts_HoldUserLock(t *testing.T) {
	env := newTestEnv(t, UserServiceConfig{LockTTL: time.Second})
	ctx := context.Background()
	user := env.create(t, "waiting", "secret")
	cart, err := env.users.AddCart(ctx, user.ID)
	require.NoError(t, err)

	held, err := env.locker.Acquire(ctx, lock.Keys.User(user.ID), time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	_, err = env.users.AddCart(short, user.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUserBusy) || errors.Is(err, context.DeadlineExceeded), err)

	err = env.users.RemoveCart(short, user.ID, cart.ID)
	require.Error(t, err)

	stored, err := env.users.ListCarts(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, cart.ID, stored[0].ID)
}

func TestUserService_Delete(t *testing.T) {
	env := newTestEnv(t, UserServiceConfig{})
	ctx := context.Background()
	user := env.create(t, "leaving", "secret", "admin", "user")
	_, err := env.users.AddCart(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, env.users.Delete(ctx, user.ID))

	_, err = env.users.GetByID(ctx, user.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	carts, err := env.users.ListCarts(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, carts)

	// Roles survive; only the assignments are gone.
	require.NoError(t, env.roles.Delete(ctx, "admin"))

	assert.ErrorIs(t, env.users.Delete(ctx, user.ID), ErrUserNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.AccountsDeleted))
}

func TestUserService_List(t *testing.T) {
	env := newTestEnv(t, UserServiceConfig{})
	ctx := context.Background()
	for _, name := range []string{"one", "two", "three"} {
		env.create(t, name, "secret")
	}

	page, err := env.users.List(ctx, repository.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultListLimit, page.Limit)
	assert.EqualValues(t, 3, page.Total)
	assert.Len(t, page.Items, 3)

	page, err = env.users.List(ctx, repository.ListOptions{Limit: MaxListLimit + 1, Offset: -5})
	require.NoError(t, err)
	assert.Equal(t, MaxListLimit, page.Limit)
	assert.Equal(t, 0, page.Offset)
}

// =============================================================================
// Mock Repository Types
// =============================================================================

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.UserAccount) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id int64) (*domain.UserAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserAccount), args.Error(1)
}

func (m *mockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserAccount), args.Error(1)
}

func (m *mockUserRepository) Update(ctx context.Context, user *domain.UserAccount) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockUserRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.UserAccount], error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ListResult[domain.UserAccount]), args.Error(1)
}

func (m *mockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func newMockedUserService(repo *mockUserRepository, locker lock.Locker) *UserService {
	return NewUserService(repo, nil, nil, locker, NewMetrics(nil), UserServiceConfig{LockTTL: time.Second}, zerolog.Nop())
}

func TestUserService_InfrastructureErrors(t *testing.T) {
	ctx := context.Background()
	dbErr := errors.New("connection reset")

	repo := new(mockUserRepository)
	repo.On("GetByID", mock.Anything, int64(1)).Return(nil, dbErr)
	repo.On("GetByUsername", mock.Anything, "flaky").Return(nil, dbErr)
	repo.On("Delete", mock.Anything, int64(2)).Return(dbErr)
	repo.On("List", mock.Anything, mock.Anything).Return(nil, dbErr)

	svc := newMockedUserService(repo, lock.NewNoOpLocker())

	_, err := svc.GetByID(ctx, 1)
	assert.ErrorIs(t, err, ErrInternalError)

	_, err = svc.Authenticate(ctx, "flaky", "secret")
	assert.ErrorIs(t, err, ErrInternalError)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)

	assert.ErrorIs(t, svc.Delete(ctx, 2), ErrInternalError)

	_, err = svc.List(ctx, repository.ListOptions{})
	assert.ErrorIs(t, err, ErrInternalError)

	repo.AssertExpectations(t)
}

func TestUserService_Busy(t *testing.T) {
	ctx := context.Background()
	locker := lock.NewMemoryLocker()
	t.Cleanup(locker.Close)

	_, err := locker.Acquire(ctx, lock.Keys.User(7), time.Minute)
	require.NoError(t, err)

	repo := new(mockUserRepository)
	svc := newMockedUserService(repo, locker)
	svc.cfg.LockTTL = time.Second

	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	err = svc.Delete(ctx, 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUserBusy) || errors.Is(err, context.DeadlineExceeded), err)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}
