package staff

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

type mockUserRepo struct {
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return apperr.Conflict("email already exists")
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now().Add(time.Duration(len(m.users)) * time.Millisecond)
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = u
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("not found")
	}
	return u, nil
}

func (m *mockUserRepo) First(_ context.Context) (*User, error) {
	var all []*User
	for _, u := range m.users {
		all = append(all, u)
	}
	if len(all) == 0 {
		return nil, apperr.NotFound("not found")
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return all[0], nil
}

func (m *mockUserRepo) List(_ context.Context, limit, offset int) ([]*User, int, error) {
	var result []*User
	for _, u := range m.users {
		result = append(result, u)
	}
	return result, len(result), nil
}

func newTestService() *Service {
	return NewService(newMockUserRepo())
}

func TestCreateUser(t *testing.T) {
	svc := newTestService()
	u := &User{Name: " Ana ", Email: "Ana@Clinic.Local"}
	if err := svc.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if u.Role != RoleStaff {
		t.Errorf("expected default role STAFF, got %s", u.Role)
	}
	if u.Email != "ana@clinic.local" || u.Name != "Ana" {
		t.Errorf("expected normalized name/email, got %q %q", u.Name, u.Email)
	}
}

func TestCreateUser_Validation(t *testing.T) {
	svc := newTestService()
	cases := []*User{
		{Email: "a@b.c"},
		{Name: "Ana"},
		{Name: "Ana", Email: "not-an-email"},
		{Name: "Ana", Email: "a@b.c", Role: "ROOT"},
	}
	for _, u := range cases {
		err := svc.CreateUser(context.Background(), u)
		if !apperr.Is(err, apperr.CodeValidation) {
			t.Errorf("expected validation error for %+v, got %v", u, err)
		}
	}
}

func TestDefault_NoUsers(t *testing.T) {
	svc := newTestService()
	_, err := svc.Default(context.Background())
	if !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestDefault_ReturnsOldest(t *testing.T) {
	svc := newTestService()
	first := &User{Name: "First", Email: "first@clinic.local", Role: RoleAdmin}
	second := &User{Name: "Second", Email: "second@clinic.local"}
	svc.CreateUser(context.Background(), first)
	svc.CreateUser(context.Background(), second)

	u, err := svc.Default(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != first.ID {
		t.Errorf("expected first user, got %s", u.Name)
	}
}

func TestResolve(t *testing.T) {
	svc := newTestService()
	u := &User{Name: "Ana", Email: "ana@clinic.local"}
	svc.CreateUser(context.Background(), u)

	got, err := svc.Resolve(context.Background(), nil)
	if err != nil || got.ID != u.ID {
		t.Errorf("expected default user, got %v %v", got, err)
	}

	missing := uuid.New()
	if _, err := svc.Resolve(context.Background(), &missing); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
