package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xevora/storefront/internal/identity"
	"github.com/xevora/storefront/pkg/sessioncookie"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(Config{
		SigningKey: []byte("test-signing-key"),
		Issuer:     "xevora-test",
		TTL:        time.Hour,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return manager
}

func cookiesFrom(recorder *httptest.ResponseRecorder) []*http.Cookie {
	return recorder.Result().Cookies()
}

func TestEstablishThenLookup(t *testing.T) {
	manager := newTestManager(t)
	principal := identity.Principal{
		UserID:          "user-1",
		Email:           "user@example.com",
		DisplayName:     "User One",
		AvatarURL:       "https://lh3.googleusercontent.com/a/photo",
		ProviderID:      "password",
		CredentialToken: "opaque",
	}
	recorder := httptest.NewRecorder()
	if err := manager.Establish(recorder, principal); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	cookies := cookiesFrom(recorder)
	if len(cookies) != 1 || cookies[0].Name != sessioncookie.DefaultCookieName {
		t.Fatalf("unexpected cookies %+v", cookies)
	}
	if !cookies[0].HttpOnly || !cookies[0].Secure || cookies[0].SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookie attributes %+v", cookies[0])
	}

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.AddCookie(cookies[0])
	found, err := manager.Lookup(request)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found != principal {
		t.Fatalf("expected %+v, got %+v", principal, found)
	}
}

func TestLookupWithoutCookie(t *testing.T) {
	manager := newTestManager(t)
	_, err := manager.Lookup(httptest.NewRequest(http.MethodGet, "/", nil))
	if !errors.Is(err, ErrNoSession) || !errors.Is(err, sessioncookie.ErrMissingCookie) {
		t.Fatalf("expected ErrNoSession wrapping missing cookie, got %v", err)
	}
}

func TestClearedSessionHasNoPrincipal(t *testing.T) {
	manager := newTestManager(t)
	recorder := httptest.NewRecorder()
	manager.Clear(recorder)
	cookies := cookiesFrom(recorder)
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 || cookies[0].Value != "" {
		t.Fatalf("expected an expiring cookie, got %+v", cookies)
	}
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.AddCookie(&http.Cookie{Name: manager.CookieName(), Value: cookies[0].Value})
	if _, err := manager.Lookup(request); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after clear, got %v", err)
	}
}

func TestEstablishRejectsAnonymousPrincipal(t *testing.T) {
	manager := newTestManager(t)
	if err := manager.Establish(httptest.NewRecorder(), identity.Principal{}); !errors.Is(err, ErrAnonymousPrincipal) {
		t.Fatalf("expected error for principal without user id")
	}
}

func TestNewManagerValidatesConfig(t *testing.T) {
	if _, err := NewManager(Config{Issuer: "xevora", TTL: time.Hour}); !errors.Is(err, sessioncookie.ErrMissingSigningKey) {
		t.Fatalf("expected missing signing key, got %v", err)
	}
	if _, err := NewManager(Config{SigningKey: []byte("key"), Issuer: "xevora"}); err == nil {
		t.Fatalf("expected ttl error")
	}
}

func TestInsecureCookiesForDevelopment(t *testing.T) {
	manager, err := NewManager(Config{
		SigningKey:        []byte("key"),
		Issuer:            "xevora",
		TTL:               time.Hour,
		AllowInsecureHTTP: true,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	recorder := httptest.NewRecorder()
	if err := manager.Establish(recorder, identity.Principal{UserID: "user-1"}); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	if cookiesFrom(recorder)[0].Secure {
		t.Fatalf("expected insecure cookie in development mode")
	}
}

func TestRequirePrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := newTestManager(t)
	router := gin.New()
	router.GET("/api/me", manager.RequirePrincipal(), func(contextGin *gin.Context) {
		principal, ok := PrincipalFrom(contextGin)
		if !ok {
			t.Fatalf("principal missing from context")
		}
		contextGin.String(http.StatusOK, principal.UserID)
	})

	missing := httptest.NewRecorder()
	router.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if missing.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", missing.Code)
	}

	established := httptest.NewRecorder()
	if err := manager.Establish(established, identity.Principal{UserID: "user-1"}); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	request := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	request.AddCookie(cookiesFrom(established)[0])
	response := httptest.NewRecorder()
	router.ServeHTTP(response, request)
	if response.Code != http.StatusOK || response.Body.String() != "user-1" {
		t.Fatalf("unexpected response %d %q", response.Code, response.Body.String())
	}
}

type revocationList struct {
	revoked map[string]bool
}

func (list *revocationList) VerifySession(ctx context.Context, principal identity.Principal) error {
	if list.revoked[principal.CredentialToken] {
		return identity.NewError(identity.KindInvalidCredential, "revoked")
	}
	return nil
}

func TestLookupRejectsRevokedCredential(t *testing.T) {
	verifier := &revocationList{revoked: map[string]bool{}}
	manager, err := NewManager(Config{
		SigningKey: []byte("test-signing-key"),
		Issuer:     "xevora-test",
		TTL:        time.Hour,
	}, WithPrincipalVerifier(verifier))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	recorder := httptest.NewRecorder()
	if err := manager.Establish(recorder, identity.Principal{UserID: "user-1", CredentialToken: "opaque"}); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	request := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	request.AddCookie(cookiesFrom(recorder)[0])
	if _, err := manager.Lookup(request); err != nil {
		t.Fatalf("Lookup before revocation: %v", err)
	}

	verifier.revoked["opaque"] = true
	_, err = manager.Lookup(request)
	if !errors.Is(err, ErrNoSession) || !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected revoked session, got %v", err)
	}
	if identity.KindOf(err) != identity.KindInvalidCredential {
		t.Fatalf("expected verifier error to stay reachable, got %v", err)
	}
}
