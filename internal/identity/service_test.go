package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian-erp/internal/permissions"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type fakeRepo struct {
	users map[int64]User
}

func (f *fakeRepo) GetUser(ctx context.Context, id int64) (User, error) {
	u, ok := f.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) GetUserByEmail(ctx context.Context, email string) (User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, shared.ErrNotFound
}

func (f *fakeRepo) GetUsersByRole(ctx context.Context, orgID int64, role permissions.Role) ([]User, error) {
	var out []User
	for _, u := range f.users {
		if u.OrgID == orgID && u.Role == role && u.IsActive {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetUsersByIDs(ctx context.Context, ids []int64) ([]User, error) {
	var out []User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthenticate(t *testing.T) {
	svc := NewService(&fakeRepo{users: map[int64]User{
		1: {ID: 1, Email: "mia@example.com", Role: permissions.RoleManager, OrgID: 10,
			PasswordHash: hashOf(t, "secret"), IsActive: true},
		2: {ID: 2, Email: "gone@example.com", Role: permissions.RoleMember, OrgID: 10,
			PasswordHash: hashOf(t, "secret"), IsActive: false},
	}})
	ctx := context.Background()

	user, err := svc.Authenticate(ctx, "mia@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)

	_, err = svc.Authenticate(ctx, "mia@example.com", "wrong")
	assert.True(t, errors.Is(err, shared.ErrInvalidCredentials))

	_, err = svc.Authenticate(ctx, "nobody@example.com", "secret")
	assert.True(t, errors.Is(err, shared.ErrInvalidCredentials))

	// Deactivated accounts fail with the same opaque error.
	_, err = svc.Authenticate(ctx, "gone@example.com", "secret")
	assert.True(t, errors.Is(err, shared.ErrInvalidCredentials))
}

func TestSubjectAdaptsUser(t *testing.T) {
	svc := NewService(&fakeRepo{users: map[int64]User{
		1: {ID: 1, Email: "mia@example.com", Role: permissions.RoleManager, OrgID: 10, IsActive: true},
	}})

	subject, err := svc.Subject(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, permissions.Subject{ID: 1, OrgID: 10, Role: permissions.RoleManager, Active: true}, subject)

	_, err = svc.Subject(context.Background(), 99)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}
