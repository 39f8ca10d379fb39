package server

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/shellsage-ai/ResearchHive-sub000/internal/store"
)

func mockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return &store.Store{DB: db}, mock, func() { db.Close() }
}

func TestSignupCreatesUser(t *testing.T) {
	st, mock, cleanup := mockStore(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (email, password_hash) VALUES ($1,$2)")).
		WithArgs("a@example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := &AuthHandler{Store: st, Secret: []byte("secret")}
	c, rec := jsonContext(t, http.MethodPost, "/api/auth/signup", AuthSignupRequest{Email: "a@example.com", Password: "longenough1"})
	if err := h.signup(c); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSignupRejectsShortPassword(t *testing.T) {
	st, _, cleanup := mockStore(t)
	defer cleanup()

	h := &AuthHandler{Store: st, Secret: []byte("secret")}
	c, _ := jsonContext(t, http.MethodPost, "/api/auth/signup", AuthSignupRequest{Email: "a@example.com", Password: "short"})
	err := h.signup(c)
	if code := httpCode(t, err); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestLoginIssuesToken(t *testing.T) {
	st, mock, cleanup := mockStore(t)
	defer cleanup()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	rows := sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", string(hash))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, password_hash FROM users WHERE email=$1")).
		WithArgs("a@example.com").
		WillReturnRows(rows)

	h := &AuthHandler{Store: st, Secret: []byte("secret")}
	c, rec := jsonContext(t, http.MethodPost, "/api/auth/login", AuthLoginRequest{Email: "a@example.com", Password: "password123"})
	if err := h.login(c); err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	found := false
	for _, ck := range cookies {
		if ck.Name == "auth" && ck.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected auth cookie, got %v", cookies)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	st, mock, cleanup := mockStore(t)
	defer cleanup()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	rows := sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", string(hash))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, password_hash FROM users WHERE email=$1")).
		WithArgs("a@example.com").
		WillReturnRows(rows)

	h := &AuthHandler{Store: st, Secret: []byte("secret")}
	c, _ := jsonContext(t, http.MethodPost, "/api/auth/login", AuthLoginRequest{Email: "a@example.com", Password: "wrong-password"})
	err = h.login(c)
	if code := httpCode(t, err); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestWithAuthAcceptsSignedToken(t *testing.T) {
	t.Parallel()
	secret := []byte("test-secret")
	token, err := SignJWT("user-9", secret, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotUser string
	next := func(c echo.Context) error {
		gotUser, _ = c.Get("user_id").(string)
		return c.NoContent(http.StatusOK)
	}
	if err := withAuth(secret)(next)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if gotUser != "user-9" {
		t.Fatalf("expected subject user-9, got %q", gotUser)
	}
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	t.Parallel()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	err := withAuth([]byte("test-secret"))(next)(c)
	if code := httpCode(t, err); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestWithAuthRejectsForeignSignature(t *testing.T) {
	t.Parallel()
	token, err := SignJWT("user-9", []byte("other-secret"), time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	c := e.NewContext(req, httptest.NewRecorder())

	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	err = withAuth([]byte("test-secret"))(next)(c)
	if code := httpCode(t, err); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}
