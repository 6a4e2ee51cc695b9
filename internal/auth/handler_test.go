package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type stubSessionManager struct {
	sessions  map[string]Principal
	createErr error
	next      int
}

func newStubSessionManager() *stubSessionManager {
	return &stubSessionManager{sessions: map[string]Principal{}}
}

func (s *stubSessionManager) Create(_ context.Context, email string) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.next++
	token := fmt.Sprintf("token-%d", s.next)
	s.sessions[token] = Principal{Email: email}
	return token, nil
}

func (s *stubSessionManager) Resolve(_ context.Context, token string) (Principal, error) {
	return s.sessions[token], nil
}

func (s *stubSessionManager) Destroy(_ context.Context, token string) error {
	delete(s.sessions, token)
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *stubSessionManager) {
	t.Helper()
	authenticator, _ := newTestAuthenticator(t)
	sessions := newStubSessionManager()
	return NewHandler(authenticator, sessions, 3600, false), sessions
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/login", h.Login)
	router.GET("/api/logout", h.Logout)
	router.GET("/api/profile", h.Profile)
	return router
}

func postLogin(router *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == SessionCookieName {
			return cookie
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestLoginSuccess(t *testing.T) {
	h, sessions := newTestHandler(t)
	router := newTestRouter(h)

	w := postLogin(router, `{"email":"user@example.com","password":"correct-password"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}

	cookie := sessionCookie(t, w)
	if cookie.Value == "" {
		t.Fatal("session cookie has empty token")
	}
	if !cookie.HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}
	if principal := sessions.sessions[cookie.Value]; principal.Email != "user@example.com" {
		t.Fatalf("session bound to %q, want user@example.com", principal.Email)
	}

	var body struct {
		User Principal `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.User.Email != "user@example.com" {
		t.Fatalf("user echo = %q, want user@example.com", body.User.Email)
	}
}

func TestLoginUniformRejection(t *testing.T) {
	h, _ := newTestHandler(t)
	router := newTestRouter(h)

	// 未登録メールと誤パスワードでステータスもボディも一致すること
	unknown := postLogin(router, `{"email":"nobody@example.com","password":"correct-password"}`)
	wrong := postLogin(router, `{"email":"user@example.com","password":"wrong-password"}`)

	if unknown.Code != http.StatusUnauthorized || wrong.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d / %d, want 401 / 401", unknown.Code, wrong.Code)
	}
	if unknown.Body.String() != wrong.Body.String() {
		t.Fatalf("rejection bodies differ: %s vs %s", unknown.Body.String(), wrong.Body.String())
	}
}

func TestLoginInvalidPayload(t *testing.T) {
	h, _ := newTestHandler(t)
	router := newTestRouter(h)

	w := postLogin(router, `{"email":"user@example.com"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestLoginRegeneratesSession(t *testing.T) {
	h, sessions := newTestHandler(t)
	router := newTestRouter(h)

	first := postLogin(router, `{"email":"user@example.com","password":"correct-password"}`)
	firstToken := sessionCookie(t, first).Value

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString(`{"email":"user@example.com","password":"correct-password"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: firstToken})
	router.ServeHTTP(w, req)

	secondToken := sessionCookie(t, w).Value
	if secondToken == firstToken {
		t.Fatal("login must issue a new session token")
	}
	if _, ok := sessions.sessions[firstToken]; ok {
		t.Fatal("previous session must be destroyed on login")
	}
}

func TestLoginSessionSaveFailure(t *testing.T) {
	h, sessions := newTestHandler(t)
	sessions.createErr = errors.New("redis down")
	router := newTestRouter(h)

	w := postLogin(router, `{"email":"user@example.com","password":"correct-password"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	h, _ := newTestHandler(t)
	router := newTestRouter(h)

	login := postLogin(router, `{"email":"user@example.com","password":"correct-password"}`)
	token := sessionCookie(t, login).Value

	// 2回連続で呼んでもどちらも成功すること
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/logout", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("logout #%d: status = %d, want 200", i+1, w.Code)
		}
	}
}

func TestLogoutWithoutSession(t *testing.T) {
	h, _ := newTestHandler(t)
	router := newTestRouter(h)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/logout", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestProfileRequiresSession(t *testing.T) {
	h, _ := newTestHandler(t)
	router := newTestRouter(h)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestProfileWithSession(t *testing.T) {
	h, _ := newTestHandler(t)
	router := newTestRouter(h)

	login := postLogin(router, `{"email":"user@example.com","password":"correct-password"}`)
	token := sessionCookie(t, login).Value

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}
	var body struct {
		User Principal `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.User.Email != "user@example.com" {
		t.Fatalf("user = %q, want user@example.com", body.User.Email)
	}
}
