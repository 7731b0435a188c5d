package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xevora/storefront/internal/gateway"
	"github.com/xevora/storefront/internal/identity"
	"github.com/xevora/storefront/internal/profile"
	"github.com/xevora/storefront/internal/session"
	webassets "github.com/xevora/storefront/web"
	"go.uber.org/zap"
)

type fakeAuthenticator struct {
	principal  identity.Principal
	signInErr  error
	signUpErr  error
	socialErr  error
	signOutErr error
	signedOut  []identity.Principal
	revoked    map[string]bool
	passwords  []string
	operations []string
}

func (authenticator *fakeAuthenticator) SignInWithEmail(ctx context.Context, email string, password string) (identity.Principal, error) {
	authenticator.operations = append(authenticator.operations, "signin")
	authenticator.passwords = append(authenticator.passwords, password)
	return authenticator.principal, authenticator.signInErr
}

func (authenticator *fakeAuthenticator) SignUpWithEmail(ctx context.Context, email string, password string) (identity.Principal, error) {
	authenticator.operations = append(authenticator.operations, "signup")
	authenticator.passwords = append(authenticator.passwords, password)
	return authenticator.principal, authenticator.signUpErr
}

func (authenticator *fakeAuthenticator) ResetPassword(ctx context.Context, email string) error {
	authenticator.operations = append(authenticator.operations, "reset")
	return nil
}

func (authenticator *fakeAuthenticator) SignInWithSocial(ctx context.Context, provider identity.SocialProvider, idToken string, nonce string) (identity.Principal, error) {
	authenticator.operations = append(authenticator.operations, "social:"+string(provider))
	return authenticator.principal, authenticator.socialErr
}

func (authenticator *fakeAuthenticator) SignOut(ctx context.Context, principal identity.Principal) error {
	authenticator.signedOut = append(authenticator.signedOut, principal)
	if authenticator.signOutErr != nil {
		return authenticator.signOutErr
	}
	authenticator.revoked[principal.CredentialToken] = true
	return nil
}

func (authenticator *fakeAuthenticator) VerifySession(ctx context.Context, principal identity.Principal) error {
	if authenticator.revoked[principal.CredentialToken] {
		return &gateway.Error{Kind: identity.KindInvalidCredential, Message: "Your session has ended. Please sign in again."}
	}
	return nil
}

type fakeResetConfirmer struct {
	tokens map[string]string
}

func (confirmer *fakeResetConfirmer) ConfirmPasswordReset(ctx context.Context, resetToken string, newPassword string) error {
	if _, ok := confirmer.tokens[resetToken]; !ok {
		return identity.NewError(identity.KindInvalidCredential, "The password reset link is invalid or has expired.")
	}
	confirmer.tokens[resetToken] = newPassword
	return nil
}

type testServer struct {
	router        *gin.Engine
	authenticator *fakeAuthenticator
	sessions      *session.Manager
	nonces        *session.MemoryNonceStore
	profiles      *profile.MemoryStore
	resets        *fakeResetConfirmer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	authenticator := &fakeAuthenticator{
		principal: identity.Principal{
			UserID:          "user-1",
			Email:           "user@example.com",
			DisplayName:     "User One",
			AvatarURL:       "https://lh3.googleusercontent.com/a/photo",
			CredentialToken: "opaque",
		},
		revoked: map[string]bool{},
	}
	sessions, err := session.NewManager(session.Config{
		SigningKey:        []byte("web-test-key"),
		Issuer:            "xevora-test",
		TTL:               time.Hour,
		AllowInsecureHTTP: true,
	}, session.WithPrincipalVerifier(authenticator))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	server := &testServer{
		authenticator: authenticator,
		sessions:      sessions,
		nonces:        session.NewMemoryNonceStore(time.Minute),
		profiles:      profile.NewMemoryStore(),
		resets:        &fakeResetConfirmer{tokens: map[string]string{"reset-token": ""}},
	}
	handlers, err := NewHandlers(Dependencies{
		Authenticator: server.authenticator,
		Sessions:      sessions,
		Nonces:        server.nonces,
		Profiles:      server.profiles,
		Resets:        server.resets,
		Logger:        zap.NewNop(),
	}, Config{Client: ClientConfig{GoogleClientID: "google-client"}, AllowInsecureHTTP: true})
	if err != nil {
		t.Fatalf("NewHandlers: %v", err)
	}
	server.router = gin.New()
	handlers.Mount(server.router)
	return server
}

func (server *testServer) postForm(path string, values url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	server.router.ServeHTTP(recorder, request)
	return recorder
}

func (server *testServer) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodGet, path, nil)
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	server.router.ServeHTTP(recorder, request)
	return recorder
}

func sessionCookie(t *testing.T, recorder *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func TestLandingShowsRegisterWhenSignedOut(t *testing.T) {
	server := newTestServer(t)
	recorder := server.get("/")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := recorder.Body.String()
	for _, expected := range []string{"Xevora", "Home", "About", "Products", "Categories", "Contact", "Register", `href="/auth"`} {
		if !strings.Contains(body, expected) {
			t.Fatalf("expected %q in landing page", expected)
		}
	}
	if strings.Contains(body, "Profile") {
		t.Fatalf("signed-out landing page must not show Profile")
	}
}

func TestEmailStepThenSignInEstablishesSession(t *testing.T) {
	server := newTestServer(t)

	first := server.postForm("/auth", url.Values{"email": {"user@example.com"}, "mode": {"signin"}})
	if first.Code != http.StatusOK || !strings.Contains(first.Body.String(), `type="password"`) {
		t.Fatalf("expected password step, got %d", first.Code)
	}
	if len(server.authenticator.operations) != 0 {
		t.Fatalf("email step must not call the provider")
	}

	second := server.postForm("/auth", url.Values{
		"email":             {"user@example.com"},
		"password":          {"secret1"},
		"mode":              {"signin"},
		"password_revealed": {"true"},
	})
	if second.Code != http.StatusSeeOther || second.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", second.Code, second.Header().Get("Location"))
	}
	cookie := sessionCookie(t, second, server.sessions.CookieName())

	landing := server.get("/", cookie)
	body := landing.Body.String()
	if !strings.Contains(body, "Profile") || strings.Contains(body, "Register") {
		t.Fatalf("signed-in landing page should show Profile")
	}
	if !strings.Contains(body, "https://lh3.googleusercontent.com/a/photo") {
		t.Fatalf("expected avatar on landing page")
	}
}

func TestInvalidEmailRendersLocalError(t *testing.T) {
	server := newTestServer(t)
	recorder := server.postForm("/auth", url.Values{"email": {"not-an-email"}})
	if !strings.Contains(recorder.Body.String(), "Please enter a valid email address") {
		t.Fatalf("expected validation message")
	}
	if len(server.authenticator.operations) != 0 {
		t.Fatalf("invalid email must not reach the provider")
	}
}

func TestFallbackSignUpRendersDelayedRedirect(t *testing.T) {
	server := newTestServer(t)
	server.authenticator.signInErr = &gateway.Error{Kind: identity.KindUserNotFound, Message: "No account found with this email. Please sign up."}
	recorder := server.postForm("/auth", url.Values{
		"email":             {"user@example.com"},
		"password":          {"secret1"},
		"mode":              {"signin"},
		"password_revealed": {"true"},
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected rendered page, got %d", recorder.Code)
	}
	body := recorder.Body.String()
	if !strings.Contains(body, "Account created successfully! Redirecting...") {
		t.Fatalf("expected account created message")
	}
	if !strings.Contains(body, `http-equiv="refresh"`) || !strings.Contains(body, "1;url=/") {
		t.Fatalf("expected one second refresh to /")
	}
	sessionCookie(t, recorder, server.sessions.CookieName())
	if strings.Join(server.authenticator.operations, ",") != "signin,signup" {
		t.Fatalf("unexpected operations %v", server.authenticator.operations)
	}
}

func TestResetStaysOnPage(t *testing.T) {
	server := newTestServer(t)
	recorder := server.postForm("/auth", url.Values{"email": {"user@example.com"}, "mode": {"reset"}})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "Password reset email sent! Check your inbox.") {
		t.Fatalf("expected reset confirmation")
	}
	if len(recorder.Result().Cookies()) != 0 {
		t.Fatalf("reset must not establish a session")
	}
}

func TestResetConfirmation(t *testing.T) {
	server := newTestServer(t)

	form := server.get("/auth/reset?token=reset-token")
	if !strings.Contains(form.Body.String(), `value="reset-token"`) {
		t.Fatalf("expected token in reset form")
	}

	short := server.postForm("/auth/reset", url.Values{"token": {"reset-token"}, "password": {"abc"}})
	if !strings.Contains(short.Body.String(), "Password must be at least 6 characters") {
		t.Fatalf("expected short password error")
	}

	unknown := server.postForm("/auth/reset", url.Values{"token": {"other"}, "password": {"newsecret"}})
	if !strings.Contains(unknown.Body.String(), "invalid or has expired") {
		t.Fatalf("expected invalid token error")
	}

	accepted := server.postForm("/auth/reset", url.Values{"token": {"reset-token"}, "password": {"newsecret"}})
	if !strings.Contains(accepted.Body.String(), "Your password has been updated. Please sign in.") {
		t.Fatalf("expected success message")
	}
	if server.resets.tokens["reset-token"] != "newsecret" {
		t.Fatalf("expected password to be confirmed")
	}
}

func TestAuthPagesLoadFormGuard(t *testing.T) {
	server := newTestServer(t)
	for _, path := range []string{"/auth", "/auth?mode=reset", "/auth/reset?token=reset-token"} {
		body := server.get(path).Body.String()
		if !strings.Contains(body, `<script src="/static/form-guard.js"></script>`) || !strings.Contains(body, "data-guard") {
			t.Fatalf("%s: expected guarded form", path)
		}
	}
	reset := server.get("/auth?mode=reset").Body.String()
	if strings.Contains(reset, "/static/auth-client.js") {
		t.Fatalf("reset mode has no social buttons to script")
	}
	script := server.get("/static/form-guard.js")
	if script.Code != http.StatusOK || !strings.Contains(script.Body.String(), "form[data-guard]") {
		t.Fatalf("unexpected form guard response %d", script.Code)
	}
}

func TestPasswordIsCarriedSealedBetweenSteps(t *testing.T) {
	server := newTestServer(t)
	server.authenticator.signInErr = &gateway.Error{Kind: identity.KindTooManyRequests, Message: "Too many failed attempts. Please try again later."}
	failed := server.postForm("/auth", url.Values{
		"email":             {"user@example.com"},
		"password":          {"hunter22"},
		"mode":              {"signin"},
		"password_revealed": {"true"},
	})
	body := failed.Body.String()
	if strings.Contains(body, "hunter22") {
		t.Fatalf("rendered page must not contain the password")
	}
	match := regexp.MustCompile(`name="password_seal" value="([^"]+)"`).FindStringSubmatch(body)
	if match == nil {
		t.Fatalf("expected a sealed password field")
	}
	seal := match[1]

	switched := server.postForm("/auth/mode", url.Values{
		"email":             {"user@example.com"},
		"password_seal":     {seal},
		"mode":              {"signin"},
		"password_revealed": {"true"},
		"target":            {"signup"},
	})
	if strings.Contains(switched.Body.String(), "hunter22") || !strings.Contains(switched.Body.String(), "password_seal") {
		t.Fatalf("sign-up step should carry the sealed password only")
	}

	server.authenticator.signInErr = nil
	server.postForm("/auth", url.Values{
		"email":             {"user@example.com"},
		"password_seal":     {seal},
		"mode":              {"signup"},
		"password_revealed": {"true"},
	})
	tampered := []byte(seal)
	if tampered[4] == 'A' {
		tampered[4] = 'B'
	} else {
		tampered[4] = 'A'
	}
	server.postForm("/auth", url.Values{
		"email":             {"user@example.com"},
		"password_seal":     {string(tampered)},
		"mode":              {"signup"},
		"password_revealed": {"true"},
	})
	if strings.Join(server.authenticator.passwords, ",") != "hunter22,hunter22" {
		t.Fatalf("expected sealed password to be reused once and a tampered seal to be dropped, got %v", server.authenticator.passwords)
	}
}

func TestSwitchModeToReset(t *testing.T) {
	server := newTestServer(t)
	recorder := server.postForm("/auth/mode", url.Values{
		"email":             {"user@example.com"},
		"password":          {"secret1"},
		"mode":              {"signin"},
		"password_revealed": {"true"},
		"target":            {"reset"},
	})
	body := recorder.Body.String()
	if !strings.Contains(body, "Reset Password") || !strings.Contains(body, "Send Reset Link") {
		t.Fatalf("expected reset form")
	}
	if strings.Contains(body, "secret1") || strings.Contains(body, `type="password"`) {
		t.Fatalf("reset form must drop the password")
	}
}

func TestSocialSignInRequiresIssuedNonce(t *testing.T) {
	server := newTestServer(t)

	payload := `{"id_token":"token","nonce":"never-issued"}`
	request := httptest.NewRequest(http.MethodPost, "/auth/google", strings.NewReader(payload))
	request.Header.Set("Content-Type", "application/json")
	rejected := httptest.NewRecorder()
	server.router.ServeHTTP(rejected, request)
	if rejected.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown nonce, got %d", rejected.Code)
	}

	nonceResponse := server.get("/auth/nonce")
	var noncePayload struct {
		Nonce string `json:"nonce"`
	}
	if err := json.Unmarshal(nonceResponse.Body.Bytes(), &noncePayload); err != nil || noncePayload.Nonce == "" {
		t.Fatalf("expected nonce payload, got %s", nonceResponse.Body.String())
	}

	request = httptest.NewRequest(http.MethodPost, "/auth/apple", strings.NewReader(`{"id_token":"token","nonce":"`+noncePayload.Nonce+`"}`))
	request.Header.Set("Content-Type", "application/json")
	accepted := httptest.NewRecorder()
	server.router.ServeHTTP(accepted, request)
	if accepted.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", accepted.Code, accepted.Body.String())
	}
	sessionCookie(t, accepted, server.sessions.CookieName())
	var signInPayload map[string]any
	if err := json.Unmarshal(accepted.Body.Bytes(), &signInPayload); err != nil {
		t.Fatalf("decode sign-in payload: %v", err)
	}
	if signInPayload["redirect"] != "/" || signInPayload["user_id"] != "user-1" {
		t.Fatalf("unexpected payload %v", signInPayload)
	}
}

func TestSocialSignInFailureReportsMessage(t *testing.T) {
	server := newTestServer(t)
	server.authenticator.socialErr = &gateway.Error{Message: "Failed to sign in with Google"}
	nonce, err := server.nonces.Issue(context.Background())
	if err != nil {
		t.Fatalf("issue nonce: %v", err)
	}
	request := httptest.NewRequest(http.MethodPost, "/auth/google", strings.NewReader(`{"id_token":"token","nonce":"`+nonce+`"}`))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	server.router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized || !strings.Contains(recorder.Body.String(), "Failed to sign in with Google") {
		t.Fatalf("unexpected response %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestSocialSignInRejectsEmptyToken(t *testing.T) {
	server := newTestServer(t)
	request := httptest.NewRequest(http.MethodPost, "/auth/google", strings.NewReader(`{"id_token":" "}`))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	server.router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["error"] != "invalid_json" || payload["message"] != "Sign-in failed. Please try again." {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func (server *testServer) postSocial(t *testing.T, path string, nonce string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"id_token":"token","nonce":"`+nonce+`"}`))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	server.router.ServeHTTP(recorder, request)
	return recorder
}

func TestSocialSignInRetryNeedsFreshNonce(t *testing.T) {
	server := newTestServer(t)
	server.authenticator.socialErr = &gateway.Error{Message: "Failed to sign in with Google"}
	first, err := server.nonces.Issue(context.Background())
	if err != nil {
		t.Fatalf("issue nonce: %v", err)
	}
	if failed := server.postSocial(t, "/auth/google", first); failed.Code != http.StatusUnauthorized {
		t.Fatalf("expected failed exchange, got %d", failed.Code)
	}

	server.authenticator.socialErr = nil
	reused := server.postSocial(t, "/auth/google", first)
	var payload map[string]string
	if err := json.Unmarshal(reused.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reused.Code != http.StatusUnauthorized || payload["error"] != "invalid_nonce" {
		t.Fatalf("expected spent nonce to be rejected, got %d %v", reused.Code, payload)
	}
	if payload["message"] != "This sign-in attempt has expired. Please try again." {
		t.Fatalf("expected user-facing text for a spent nonce, got %q", payload["message"])
	}

	second, err := server.nonces.Issue(context.Background())
	if err != nil {
		t.Fatalf("issue nonce: %v", err)
	}
	if retried := server.postSocial(t, "/auth/google", second); retried.Code != http.StatusOK {
		t.Fatalf("expected retry with a fresh nonce to succeed, got %d %s", retried.Code, retried.Body.String())
	}

	script := server.get("/static/auth-client.js").Body.String()
	if !strings.Contains(script, "complete(exchange(social.dataset.googleUrl, response.credential, nonce), prepareGoogle)") {
		t.Fatalf("google button must be prepared with a new nonce after each exchange")
	}
}

func TestLogoutClearsSessionEvenWhenProviderFails(t *testing.T) {
	server := newTestServer(t)
	server.authenticator.signOutErr = &gateway.Error{Message: "Failed to sign out"}

	established := httptest.NewRecorder()
	if err := server.sessions.Establish(established, server.authenticator.principal); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	cookie := sessionCookie(t, established, server.sessions.CookieName())

	recorder := server.postForm("/auth/logout", url.Values{}, cookie)
	if recorder.Code != http.StatusSeeOther || recorder.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d", recorder.Code)
	}
	cleared := sessionCookie(t, recorder, server.sessions.CookieName())
	if cleared.MaxAge >= 0 || cleared.Value != "" {
		t.Fatalf("expected cleared cookie, got %+v", cleared)
	}
	if len(server.authenticator.signedOut) != 1 || server.authenticator.signedOut[0].CredentialToken != "opaque" {
		t.Fatalf("expected provider sign-out with credential token, got %+v", server.authenticator.signedOut)
	}

	me := server.get("/api/me", cleared)
	if me.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", me.Code)
	}
}

func TestSessionCookieStopsWorkingAfterLogout(t *testing.T) {
	server := newTestServer(t)
	signIn := server.postForm("/auth", url.Values{
		"email":             {"user@example.com"},
		"password":          {"secret1"},
		"mode":              {"signin"},
		"password_revealed": {"true"},
	})
	captured := sessionCookie(t, signIn, server.sessions.CookieName())
	if me := server.get("/api/me", captured); me.Code != http.StatusOK {
		t.Fatalf("expected 200 before logout, got %d", me.Code)
	}

	if logout := server.postForm("/auth/logout", url.Values{}, captured); logout.Code != http.StatusSeeOther {
		t.Fatalf("expected logout redirect, got %d", logout.Code)
	}

	replayed := server.get("/api/me", captured)
	if replayed.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a cookie captured before logout, got %d", replayed.Code)
	}
	landing := server.get("/", captured)
	if !strings.Contains(landing.Body.String(), "Register") {
		t.Fatalf("landing page should treat a signed-out cookie as anonymous")
	}
}

func TestWhoAmIIncludesMirroredProfile(t *testing.T) {
	server := newTestServer(t)
	createdAt := time.Unix(1700000000, 0).UTC()
	if err := server.profiles.Merge(context.Background(), profile.Record{UserID: "user-1", CreatedAt: createdAt, LastLogin: createdAt}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	established := httptest.NewRecorder()
	if err := server.sessions.Establish(established, server.authenticator.principal); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	recorder := server.get("/api/me", sessionCookie(t, established, server.sessions.CookieName()))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["user_email"] != "user@example.com" || payload["display"] != "User One" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if _, ok := payload["created_at"]; !ok {
		t.Fatalf("expected created_at from mirrored profile")
	}
	if _, ok := payload["credential_token"]; ok {
		t.Fatalf("credential token must not be exposed")
	}
}

func TestServeEmbeddedStaticJS(t *testing.T) {
	server := newTestServer(t)
	recorder := server.get("/static/auth-client.js")
	if recorder.Code != http.StatusOK || !strings.HasPrefix(recorder.Header().Get("Content-Type"), "application/javascript") {
		t.Fatalf("unexpected response %d %q", recorder.Code, recorder.Header().Get("Content-Type"))
	}

	missRouter := gin.New()
	missRouter.GET("/missing.js", func(contextGin *gin.Context) {
		ServeEmbeddedStaticJS(contextGin, webassets.FS, "missing.js")
	})
	missRecorder := httptest.NewRecorder()
	missRouter.ServeHTTP(missRecorder, httptest.NewRequest(http.MethodGet, "/missing.js", nil))
	if missRecorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing asset, got %d", missRecorder.Code)
	}
}

func TestServeClientConfig(t *testing.T) {
	server := newTestServer(t)
	recorder := server.get("/static/config.js")
	body := recorder.Body.String()
	if !strings.Contains(body, "window.__XEVORA_CONFIG") || !strings.Contains(body, `"googleClientId":"google-client"`) {
		t.Fatalf("unexpected config script %s", body)
	}
	if !strings.Contains(body, `"baseUrl":"http://example.com"`) {
		t.Fatalf("expected base url derived from request host, got %s", body)
	}
}

func TestConfigureCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	middleware, err := ConfigureCORS(zap.NewNop(), []string{"http://localhost:3000", "http://localhost:3000/"})
	if err != nil {
		t.Fatalf("unexpected error configuring CORS: %v", err)
	}
	router.Use(middleware)
	router.OPTIONS("/auth/nonce", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodOptions, "/auth/nonce", nil)
	request.Header.Set("Origin", "http://localhost:3000")
	request.Header.Set("Access-Control-Request-Method", http.MethodGet)
	router.ServeHTTP(recorder, request)

	if origin := recorder.Header().Get("Access-Control-Allow-Origin"); origin != "http://localhost:3000" {
		t.Fatalf("unexpected allowed origin header: %q", origin)
	}
	if recorder.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials to be allowed")
	}
}

func TestConfigureCORSRejectsUnsafeOrigins(t *testing.T) {
	for _, origins := range [][]string{nil, {"  "}, {"*"}, {"https://shop.example.com/path"}, {"ftp://shop.example.com"}} {
		if _, err := ConfigureCORS(nil, origins); err == nil {
			t.Fatalf("expected error for origins %v", origins)
		}
	}
}
