package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/shoppingcart/internal/domain"
	"github.com/prn-tf/shoppingcart/internal/repository"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	ctx := context.Background()
	db, err := NewDB(ctx, DefaultConfig(filepath.Join(t.TempDir(), "shop.db")), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(ctx))
	return db
}

func seedRoles(t *testing.T, repos *repository.Repositories, names ...string) map[string]*domain.Role {
	t.Helper()

	roles := make(map[string]*domain.Role, len(names))
	for _, n := range names {
		role := domain.NewRole(n)
		require.NoError(t, repos.Role.Create(context.Background(), role))
		roles[n] = role
	}
	return roles
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(newTestDB(t))
	roles := seedRoles(t, repos, "admin", "user")

	user := domain.NewUserAccount("admin", "the boss")
	user.PasswordHash = "$2a$04$hash"
	user.AddRole(roles["admin"])
	user.AddRole(roles["user"])
	user.AddCart(domain.NewCart())

	require.NoError(t, repos.User.Create(ctx, user))
	require.NotZero(t, user.ID)
	require.Len(t, user.Carts, 1)
	assert.NotZero(t, user.Carts[0].ID)
	assert.Equal(t, user.ID, user.Carts[0].UserID)

	got, err := repos.User.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Username)
	assert.Equal(t, "the boss", got.Comments)
	assert.Equal(t, "$2a$04$hash", got.PasswordHash)
	assert.Equal(t, []string{"ROLE_ADMIN", "ROLE_USER"}, got.Authorities())
	require.Len(t, got.Carts, 1)
	assert.Equal(t, user.Carts[0].ID, got.Carts[0].ID)
	assert.WithinDuration(t, user.CreatedAt, got.CreatedAt, 0)

	byName, err := repos.User.GetByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)
}

func TestUserRepository_Create_ResolvesRoleByName(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(newTestDB(t))
	seedRoles(t, repos, "data")

	user := domain.NewUserAccount("cinnamon", "")
	user.AddRole(&domain.Role{Name: "data"})
	require.NoError(t, repos.User.Create(ctx, user))
	assert.NotZero(t, user.Roles[0].Role.ID)

	missing := domain.NewUserAccount("ghost", "")
	missing.AddRole(&domain.Role{Name: "nope"})
	err := repos.User.Create(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrRoleNotFound)

	exists, err := repos.User.ExistsByUsername(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, exists, "failed create must roll back")
}

func TestUserRepository_Create_DuplicateUsername(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(newTestDB(t))

	require.NoError(t, repos.User.Create(ctx, domain.NewUserAccount("puttat", "")))
	err := repos.User.Create(ctx, domain.NewUserAccount("puttat", ""))
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)
}

func TestUserRepository_GetNotFound(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(newTestDB(t))

	_, err := repos.User.GetByID(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = repos.User.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUserRepository_Update(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(newTestDB(t))
	roles := seedRoles(t, repos, "admin", "user")

	user := domain.NewUserAccount("misskitty", "")
	user.AddRole(roles["user"])
	user.AddCart(domain.NewCart())
	user.AddCart(domain.NewCart())
	require.NoError(t, repos.User.Create(ctx, user))
	dropped := user.Carts[0].ID

	user.Comments = "updated"
	require.NoError(t, user.RemoveCart(dropped))
	user.AddCart(domain.NewCart())
	require.NoError(t, user.RemoveRole("user"))
	user.AddRole(roles["admin"])
	require.NoError(t, repos.User.Update(ctx, user))

	got, err := repos.User.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Comments)
	assert.Equal(t, []string{"ROLE_ADMIN"}, got.Authorities())
	require.Len(t, got.Carts, 2)
	for _, c := range got.Carts {
		assert.NotEqual(t, dropped, c.ID)
	}
}

func TestUserRepository_Update_Errors(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(newTestDB(t))

	a := domain.NewUserAccount("alpha", "")
	b := domain.NewUserAccount("bravo", "")
	require.NoError(t, repos.User.Create(ctx, a))
	require.NoError(t, repos.User.Create(ctx, b))

	b.Username = "alpha"
	assert.ErrorIs(t, repos.User.Update(ctx, b), domain.ErrUserAlreadyExists)

	ghost := domain.NewUserAccount("ghost", "")
	require.NoError(t, ghost.AssignID(999))
	assert.ErrorIs(t, repos.User.Update(ctx, ghost), domain.ErrUserNotFound)
}

func TestUserRepository_Update_StaleCopyKeepsNewCarts(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(newTestDB(t))

	user := domain.NewUserAccount("misskitty", "")
	require.NoError(t, repos.User.Create(ctx, user))

	snapshot, err := repos.User.GetByID(ctx, user.ID)
	require.NoError(t, err)

	cart := domain.NewCart()
	cart.UserID = user.ID
	require.NoError(t, repos.Cart.Create(ctx, cart))

	snapshot.Comments = "changed"
	require.NoError(t, repos.User.Update(ctx, snapshot))

	carts, err := repos.Cart.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, carts, 1)
	assert.Equal(t, cart.ID, carts[0].ID)
}

func TestUserRepository_Update_DeletesOnlyRemovedCarts(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(newTestDB(t))

	user := domain.NewUserAccount("stumps", "")
	user.AddCart(domain.NewCart())
	user.AddCart(domain.NewCart())
	require.NoError(t, repos.User.Create(ctx, user))
	dropped, kept := user.Carts[0].ID, user.Carts[1].ID

	require.NoError(t, user.RemoveCart(dropped))
	require.NoError(t, repos.User.Update(ctx, user))
	assert.Empty(t, user.RemovedCartIDs())

	carts, err := repos.Cart.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, carts, 1)
	assert.Equal(t, kept, carts[0].ID)
}

func TestUserRepository_Create_RetryAfterRollback(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(newTestDB(t))

	user := domain.NewUserAccount("cinnamon", "")
	user.AddRole(&domain.Role{Name: "data"})
	user.AddCart(domain.NewCart())

	err := repos.User.Create(ctx, user)
	require.ErrorIs(t, err, domain.ErrRoleNotFound)
	assert.Zero(t, user.ID)
	assert.Zero(t, user.Carts[0].ID)
	assert.Zero(t, user.Carts[0].UserID)

	seedRoles(t, repos, "data")
	require.NoError(t, repos.User.Create(ctx, user))
	assert.NotZero(t, user.ID)

	got, err := repos.User.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_DATA"}, got.Authorities())
	assert.Len(t, got.Carts, 1)
}

func TestUserRepository_RoleLinkResolvedByName(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(newTestDB(t))
	roles := seedRoles(t, repos, "user", "admin")

	user := domain.NewUserAccount("sneaky", "")
	user.AddRole(&domain.Role{ID: roles["user"].ID, Name: "admin"})
	require.NoError(t, repos.User.Create(ctx, user))
	assert.Equal(t, roles["admin"].ID, user.Roles[0].Role.ID)

	got, err := repos.User.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_ADMIN"}, got.Authorities())
	assert.Equal(t, roles["admin"].ID, got.Roles[0].Role.ID)
}

func TestUserRepository_Delete_RemovesOwnedChildren(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repos := NewRepositories(db)
	roles := seedRoles(t, repos, "user")

	user := domain.NewUserAccount("stumps", "")
	user.AddRole(roles["user"])
	user.AddCart(domain.NewCart())
	require.NoError(t, repos.User.Create(ctx, user))

	other := domain.NewUserAccount("keeper", "")
	other.AddRole(roles["user"])
	other.AddCart(domain.NewCart())
	require.NoError(t, repos.User.Create(ctx, other))

	require.NoError(t, repos.User.Delete(ctx, user.ID))

	_, err := repos.User.GetByID(ctx, user.ID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	var carts, links int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM carts WHERE user_id = ?`, user.ID).Scan(&carts))
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_roles WHERE user_id = ?`, user.ID).Scan(&links))
	assert.Zero(t, carts)
	assert.Zero(t, links)

	kept, err := repos.User.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, kept.Carts, 1)
	assert.Equal(t, []string{"ROLE_USER"}, kept.Authorities())

	assert.ErrorIs(t, repos.User.Delete(ctx, user.ID), domain.ErrUserNotFound)
}

func TestUserRepository_ListAndExists(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(newTestDB(t))

	for _, name := range []string{"one", "two", "three"} {
		require.NoError(t, repos.User.Create(ctx, domain.NewUserAccount(name, "")))
	}

	page, err := repos.User.List(ctx, repository.ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "one", page.Items[0].Username)
	assert.NotNil(t, page.Items[0].Roles)

	page, err = repos.User.List(ctx, repository.ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "three", page.Items[0].Username)

	exists, err := repos.User.ExistsByUsername(ctx, "two")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRoleRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(newTestDB(t))
	roles := seedRoles(t, repos, "user", "admin")

	err := repos.Role.Create(ctx, domain.NewRole("admin"))
	assert.ErrorIs(t, err, domain.ErrRoleAlreadyExists)

	got, err := repos.Role.GetByName(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, roles["admin"].ID, got.ID)

	_, err = repos.Role.GetByName(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRoleNotFound)

	list, err := repos.Role.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "admin", list[0].Name)

	user := domain.NewUserAccount("holder", "")
	user.AddRole(roles["user"])
	require.NoError(t, repos.User.Create(ctx, user))

	assert.ErrorIs(t, repos.Role.Delete(ctx, roles["user"].ID), domain.ErrRoleInUse)
	require.NoError(t, repos.Role.Delete(ctx, roles["admin"].ID))
	assert.ErrorIs(t, repos.Role.Delete(ctx, roles["admin"].ID), domain.ErrRoleNotFound)
}

func TestCartRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(newTestDB(t))

	user := domain.NewUserAccount("shopper", "")
	require.NoError(t, repos.User.Create(ctx, user))

	cart := domain.NewCart()
	cart.UserID = user.ID
	require.NoError(t, repos.Cart.Create(ctx, cart))
	assert.NotZero(t, cart.ID)

	orphan := domain.NewCart()
	orphan.UserID = 12345
	assert.ErrorIs(t, repos.Cart.Create(ctx, orphan), domain.ErrUserNotFound)

	carts, err := repos.Cart.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, carts, 1)

	assert.ErrorIs(t, repos.Cart.Delete(ctx, user.ID+1, cart.ID), domain.ErrCartNotFound)
	require.NoError(t, repos.Cart.Delete(ctx, user.ID, cart.ID))

	carts, err = repos.Cart.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, carts)
}

func TestMigrator_Status(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	m, err := db.Migrator()
	require.NoError(t, err)

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for _, s := range statuses {
		assert.True(t, s.Applied, s.Path)
	}

	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
}
