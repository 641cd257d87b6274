package auth

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
)

type fakeUserRepo struct {
	byEmail map[string]*User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byEmail: make(map[string]*User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *User) error {
	r.byEmail[user.Email] = user
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, userID id.ID) (*User, error) {
	for _, u := range r.byEmail {
		if u.ID == userID {
			return u, nil
		}
	}
	return nil, apperror.NewNotFound("user", userID.String())
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	if u, ok := r.byEmail[email]; ok {
		return u, nil
	}
	return nil, apperror.NewNotFound("user", email)
}

func (r *fakeUserRepo) Update(ctx context.Context, user *User) error {
	r.byEmail[user.Email] = user
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeUserRepo) {
	t.Helper()
	repo := newFakeUserRepo()
	svc := NewService(repo, NewJWTService(DefaultJWTConfig("test-secret")))
	return svc, repo
}

func seedUser(t *testing.T, repo *fakeUserRepo, email, password string, roles ...string) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := NewUser(email, string(hash))
	u.Roles = roles
	repo.byEmail[email] = u
	return u
}

func TestLoginIssuesValidToken(t *testing.T) {
	svc, repo := newTestService(t)
	seedUser(t, repo, "keeper@example.com", "s3cret-pass", "storekeeper")

	res, err := svc.Login(context.Background(), "keeper@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.AccessToken == "" {
		t.Fatal("expected a token")
	}

	actor, err := svc.ValidateToken(res.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if actor.Email != "keeper@example.com" {
		t.Errorf("email: got %s", actor.Email)
	}
	if len(actor.Roles) != 1 || actor.Roles[0] != "storekeeper" {
		t.Errorf("roles: got %v", actor.Roles)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, repo := newTestService(t)
	seedUser(t, repo, "keeper@example.com", "s3cret-pass")

	_, err := svc.Login(context.Background(), "keeper@example.com", "wrong")
	if !apperror.IsCode(err, apperror.CodeUnauthorized) {
		t.Fatalf("got %v, want UNAUTHORIZED", err)
	}
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "nobody@example.com", "whatever")
	if !apperror.IsCode(err, apperror.CodeUnauthorized) {
		t.Fatalf("got %v, want UNAUTHORIZED", err)
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(t, repo, "keeper@example.com", "s3cret-pass")

	for i := 0; i < maxFailedAttempts; i++ {
		_, _ = svc.Login(context.Background(), "keeper@example.com", "wrong")
	}

	if !user.IsLocked() {
		t.Fatal("account must be locked after repeated failures")
	}

	// Even the right password is rejected while locked
	_, err := svc.Login(context.Background(), "keeper@example.com", "s3cret-pass")
	if !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Fatalf("got %v, want FORBIDDEN", err)
	}
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	svc, repo := newTestService(t)
	seedUser(t, repo, "keeper@example.com", "s3cret-pass")

	res, err := svc.Login(context.Background(), "keeper@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	other := NewService(repo, NewJWTService(DefaultJWTConfig("other-secret")))
	if _, err := other.ValidateToken(res.AccessToken); err == nil {
		t.Fatal("token signed with another secret must not validate")
	}
}

func TestChangePassword(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(t, repo, "keeper@example.com", "s3cret-pass")

	if err := svc.ChangePassword(context.Background(), user.ID, "s3cret-pass", "new-password-1"); err != nil {
		t.Fatalf("change: %v", err)
	}

	if _, err := svc.Login(context.Background(), "keeper@example.com", "new-password-1"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	if err := svc.ChangePassword(context.Background(), user.ID, "wrong", "another-pass-1"); !apperror.IsCode(err, apperror.CodeUnauthorized) {
		t.Fatalf("got %v, want UNAUTHORIZED", err)
	}
}
