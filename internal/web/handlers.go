// Package web serves the storefront pages and the auth endpoints behind them.
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/xevora/storefront/internal/flow"
	"github.com/xevora/storefront/internal/identity"
	"github.com/xevora/storefront/internal/profile"
	"github.com/xevora/storefront/internal/session"
	webassets "github.com/xevora/storefront/web"
	"go.uber.org/zap"
)

// Authenticator is the credential gateway used by the handlers.
type Authenticator interface {
	flow.Authenticator
	SignOut(ctx context.Context, principal identity.Principal) error
}

// ResetConfirmer completes a password reset started by an emailed link.
type ResetConfirmer interface {
	ConfirmPasswordReset(ctx context.Context, resetToken string, newPassword string) error
}

// Dependencies are the collaborators shared by every handler.
type Dependencies struct {
	Authenticator Authenticator
	Sessions      *session.Manager
	Nonces        session.NonceStore
	// Profiles is optional; when set, /api/me includes mirrored timestamps.
	Profiles profile.Store
	// Resets is optional; hosted providers serve their own reset page.
	Resets ResetConfirmer
	Logger *zap.Logger
}

// Config carries the browser-facing settings.
type Config struct {
	Client            ClientConfig
	AllowInsecureHTTP bool
	// FormKey keys the encryption of passwords carried between form steps.
	FormKey []byte
}

// Handlers serves pages and auth endpoints.
type Handlers struct {
	dependencies Dependencies
	config       Config
	templates    *template.Template
	sealer       *passwordSealer
	logger       *zap.Logger
}

// NewHandlers parses the embedded templates and validates dependencies.
func NewHandlers(dependencies Dependencies, config Config) (*Handlers, error) {
	if dependencies.Authenticator == nil {
		return nil, errors.New("web.handlers.missing_authenticator")
	}
	if dependencies.Sessions == nil {
		return nil, errors.New("web.handlers.missing_session_manager")
	}
	templates, parseErr := template.ParseFS(webassets.FS, "templates/*.tmpl")
	if parseErr != nil {
		return nil, fmt.Errorf("web.handlers.templates: %w", parseErr)
	}
	sealer, sealErr := newPasswordSealer(config.FormKey)
	if sealErr != nil {
		return nil, sealErr
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		dependencies: dependencies,
		config:       config,
		templates:    templates,
		sealer:       sealer,
		logger:       logger,
	}, nil
}

// Mount registers every route on router.
func (handlers *Handlers) Mount(router gin.IRouter) {
	router.GET("/", handlers.landing)
	router.GET("/auth", handlers.showAuth)
	router.POST("/auth", handlers.submitAuth)
	router.POST("/auth/mode", handlers.switchMode)
	router.GET("/auth/nonce", handlers.issueNonce)
	router.POST("/auth/google", handlers.socialSignIn(identity.SocialGoogle))
	router.POST("/auth/apple", handlers.socialSignIn(identity.SocialApple))
	router.POST("/auth/logout", handlers.logout)
	if handlers.dependencies.Resets != nil {
		router.GET("/auth/reset", handlers.showResetConfirm)
		router.POST("/auth/reset", handlers.confirmReset)
	}
	router.GET("/api/me", handlers.dependencies.Sessions.RequirePrincipal(), handlers.whoAmI)
	router.GET("/static/auth-client.js", func(contextGin *gin.Context) {
		ServeEmbeddedStaticJS(contextGin, webassets.FS, "auth-client.js")
	})
	router.GET("/static/form-guard.js", func(contextGin *gin.Context) {
		ServeEmbeddedStaticJS(contextGin, webassets.FS, "form-guard.js")
	})
	router.GET("/static/config.js", func(contextGin *gin.Context) {
		ServeClientConfig(contextGin, handlers.config.Client)
	})
}

type navItem struct {
	Name   string
	Anchor string
}

func (item navItem) Link() string {
	return "#" + item.Anchor
}

var storefrontNav = []navItem{
	{Name: "Home", Anchor: "home"},
	{Name: "About", Anchor: "about"},
	{Name: "Products", Anchor: "products"},
	{Name: "Categories", Anchor: "categories"},
	{Name: "Contact", Anchor: "contact"},
}

type refresh struct {
	Seconds int
	Target  string
}

type page struct {
	Title   string
	Refresh *refresh
}

type landingPage struct {
	page
	NavItems  []navItem
	CartCount int
	Principal *identity.Principal
	AvatarURL string
}

type authPage struct {
	page
	View flow.View
	// Form never carries the password; PasswordSeal does, encrypted.
	Form         flow.FormState
	PasswordSeal string
}

type resetPage struct {
	page
	Token   string
	Error   string
	Success string
}

func (handlers *Handlers) landing(contextGin *gin.Context) {
	data := landingPage{page: page{Title: "Xevora"}, NavItems: storefrontNav}
	if principal, err := handlers.dependencies.Sessions.Lookup(contextGin.Request); err == nil {
		data.Principal = &principal
		data.AvatarURL = profile.SanitizeAvatarURL(principal.AvatarURL)
	}
	handlers.render(contextGin, http.StatusOK, "landing", data)
}

func (handlers *Handlers) showAuth(contextGin *gin.Context) {
	controller := flow.NewController(handlers.dependencies.Authenticator)
	if mode := contextGin.Query("mode"); mode != "" {
		controller.SwitchMode(flow.ParseMode(mode))
	}
	handlers.renderAuth(contextGin, controller.View())
}

func (handlers *Handlers) submitAuth(contextGin *gin.Context) {
	form, ok := handlers.bindForm(contextGin)
	if !ok {
		return
	}
	controller := flow.Restore(handlers.dependencies.Authenticator, form)
	outcome, submitErr := controller.Submit(contextGin.Request.Context())
	if submitErr != nil {
		handlers.logger.Error("auth submission failed",
			zap.String("code", "web.auth.submit_failed"),
			zap.Error(submitErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	view := controller.View()
	if outcome.Authenticated && !handlers.establish(contextGin, outcome.Principal) {
		return
	}
	if view.Redirect != nil && view.Redirect.Delay == 0 {
		contextGin.Redirect(http.StatusSeeOther, view.Redirect.Target)
		return
	}
	handlers.renderAuth(contextGin, view)
}

func (handlers *Handlers) switchMode(contextGin *gin.Context) {
	form, ok := handlers.bindForm(contextGin)
	if !ok {
		return
	}
	controller := flow.Restore(handlers.dependencies.Authenticator, form)
	controller.SwitchMode(flow.ParseMode(contextGin.PostForm("target")))
	handlers.renderAuth(contextGin, controller.View())
}

func (handlers *Handlers) issueNonce(contextGin *gin.Context) {
	if handlers.dependencies.Nonces == nil {
		contextGin.AbortWithStatus(http.StatusNotFound)
		return
	}
	nonce, issueErr := handlers.dependencies.Nonces.Issue(contextGin.Request.Context())
	if issueErr != nil {
		handlers.logger.Error("nonce issue failed",
			zap.String("code", "web.nonce.issue_failed"),
			zap.Error(issueErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.Header("Cache-Control", "no-store")
	contextGin.JSON(http.StatusOK, gin.H{"nonce": nonce})
}

func (handlers *Handlers) socialSignIn(provider identity.SocialProvider) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		var inbound struct {
			IDToken string `json:"id_token"`
			Nonce   string `json:"nonce"`
		}
		if bindErr := contextGin.ShouldBindJSON(&inbound); bindErr != nil || strings.TrimSpace(inbound.IDToken) == "" {
			abortSocial(contextGin, http.StatusBadRequest, socialInvalidJSON, "")
			return
		}
		if !handlers.config.AllowInsecureHTTP && !isHTTPS(contextGin.Request) {
			abortSocial(contextGin, http.StatusBadRequest, socialHTTPSRequired, "")
			return
		}
		ctx := contextGin.Request.Context()
		if handlers.dependencies.Nonces != nil {
			if consumeErr := handlers.dependencies.Nonces.Consume(ctx, inbound.Nonce); consumeErr != nil {
				handlers.logger.Info("social sign-in nonce rejected",
					zap.String("code", "web.social.invalid_nonce"),
					zap.String("provider", string(provider)),
					zap.Error(consumeErr))
				abortSocial(contextGin, http.StatusUnauthorized, socialInvalidNonce, "")
				return
			}
		}

		controller := flow.NewController(handlers.dependencies.Authenticator)
		outcome, signInErr := controller.SignInWithSocial(ctx, provider, inbound.IDToken, inbound.Nonce)
		if signInErr != nil {
			handlers.logger.Error("social sign-in failed",
				zap.String("code", "web.social.sign_in_failed"),
				zap.String("provider", string(provider)),
				zap.Error(signInErr))
			abortSocial(contextGin, http.StatusInternalServerError, socialFailed, "")
			return
		}
		view := controller.View()
		if !outcome.Authenticated {
			abortSocial(contextGin, http.StatusUnauthorized, socialFailed, view.Error)
			return
		}
		if !handlers.establish(contextGin, outcome.Principal) {
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{
			"redirect":   view.Redirect.Target,
			"user_id":    outcome.Principal.UserID,
			"user_email": outcome.Principal.Email,
			"display":    outcome.Principal.DisplayName,
		})
	}
}

const (
	socialInvalidJSON   = "invalid_json"
	socialHTTPSRequired = "https_required"
	socialInvalidNonce  = "invalid_nonce"
	socialFailed        = "sign_in_failed"
)

var socialMessages = map[string]string{
	socialInvalidJSON:   "Sign-in failed. Please try again.",
	socialHTTPSRequired: "Sign-in requires a secure connection.",
	socialInvalidNonce:  "This sign-in attempt has expired. Please try again.",
	socialFailed:        "Failed to sign in",
}

// abortSocial answers a social exchange with a stable code and text fit for the user.
func abortSocial(contextGin *gin.Context, status int, code string, message string) {
	if message == "" {
		message = socialMessages[code]
	}
	contextGin.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}

func (handlers *Handlers) showResetConfirm(contextGin *gin.Context) {
	handlers.render(contextGin, http.StatusOK, "reset", resetPage{
		page:  page{Title: "Choose a new password | Xevora"},
		Token: contextGin.Query("token"),
	})
}

func (handlers *Handlers) confirmReset(contextGin *gin.Context) {
	data := resetPage{page: page{Title: "Choose a new password | Xevora"}, Token: contextGin.PostForm("token")}
	password := contextGin.PostForm("password")
	switch {
	case strings.TrimSpace(data.Token) == "":
		data.Error = "The password reset link is invalid or has expired."
	case !flow.ValidPassword(password):
		data.Error = "Password must be at least 6 characters"
	default:
		if confirmErr := handlers.dependencies.Resets.ConfirmPasswordReset(contextGin.Request.Context(), data.Token, password); confirmErr != nil {
			data.Error = "Failed to reset password"
			if identity.KindOf(confirmErr) != identity.KindUnclassified {
				data.Error = identity.MessageOf(confirmErr)
			}
			handlers.logger.Info("password reset confirmation failed",
				zap.String("code", "web.reset.confirm_failed"),
				zap.Error(confirmErr))
		} else {
			data.Token = ""
			data.Success = "Your password has been updated. Please sign in."
		}
	}
	handlers.render(contextGin, http.StatusOK, "reset", data)
}

// logout always clears the cookie and returns to the landing page, even when
// the provider sign-out fails.
func (handlers *Handlers) logout(contextGin *gin.Context) {
	if principal, lookupErr := handlers.dependencies.Sessions.Lookup(contextGin.Request); lookupErr == nil {
		if signOutErr := handlers.dependencies.Authenticator.SignOut(contextGin.Request.Context(), principal); signOutErr != nil {
			handlers.logger.Warn("provider sign-out failed",
				zap.String("code", "web.logout.provider_failed"),
				zap.String("user_id", principal.UserID),
				zap.Error(signOutErr))
		}
	}
	handlers.dependencies.Sessions.Clear(contextGin.Writer)
	contextGin.Redirect(http.StatusSeeOther, flow.LandingRoute)
}

func (handlers *Handlers) whoAmI(contextGin *gin.Context) {
	principal, ok := session.PrincipalFrom(contextGin)
	if !ok {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	payload := gin.H{
		"user_id":     principal.UserID,
		"user_email":  principal.Email,
		"display":     principal.DisplayName,
		"avatar_url":  profile.SanitizeAvatarURL(principal.AvatarURL),
		"provider_id": principal.ProviderID,
	}
	if handlers.dependencies.Profiles != nil {
		record, found, getErr := handlers.dependencies.Profiles.Get(contextGin.Request.Context(), principal.UserID)
		switch {
		case getErr != nil:
			handlers.logger.Warn("profile lookup failed",
				zap.String("code", "api.me.profile_unavailable"),
				zap.String("user_id", principal.UserID),
				zap.Error(getErr))
		case found:
			payload["created_at"] = record.CreatedAt
			payload["last_login"] = record.LastLogin
		}
	}
	contextGin.JSON(http.StatusOK, payload)
}

func (handlers *Handlers) establish(contextGin *gin.Context, principal identity.Principal) bool {
	if establishErr := handlers.dependencies.Sessions.Establish(contextGin.Writer, principal); establishErr != nil {
		handlers.logger.Error("session establish failed",
			zap.String("code", "web.session.establish_failed"),
			zap.String("user_id", principal.UserID),
			zap.Error(establishErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return false
	}
	return true
}

// bindForm reads the auth form. A blank password falls back to the sealed
// one carried from the previous step.
func (handlers *Handlers) bindForm(contextGin *gin.Context) (flow.FormState, bool) {
	var form flow.FormState
	if bindErr := contextGin.ShouldBind(&form); bindErr != nil {
		contextGin.AbortWithStatus(http.StatusBadRequest)
		return form, false
	}
	if sealed := contextGin.PostForm("password_seal"); form.Password == "" && sealed != "" {
		password, openErr := handlers.sealer.Open(sealed)
		if openErr != nil {
			handlers.logger.Info("carried password rejected",
				zap.String("code", "web.auth.password_seal_rejected"),
				zap.Error(openErr))
		}
		form.Password = password
	}
	return form, true
}

func (handlers *Handlers) renderAuth(contextGin *gin.Context, view flow.View) {
	data := authPage{page: page{Title: view.Heading() + " | Xevora"}, View: view, Form: view.Form()}
	if data.Form.Password != "" {
		sealed, sealErr := handlers.sealer.Seal(data.Form.Password)
		if sealErr != nil {
			handlers.logger.Error("password seal failed",
				zap.String("code", "web.auth.password_seal_failed"),
				zap.Error(sealErr))
		}
		data.PasswordSeal = sealed
		data.Form.Password = ""
	}
	if view.Redirect != nil && view.Redirect.Delay > 0 {
		data.Refresh = &refresh{
			Seconds: int(math.Ceil(view.Redirect.Delay.Seconds())),
			Target:  view.Redirect.Target,
		}
	}
	handlers.render(contextGin, http.StatusOK, "auth", data)
}

func (handlers *Handlers) render(contextGin *gin.Context, status int, name string, data any) {
	contextGin.Header("Cache-Control", "no-store")
	contextGin.Render(status, render.HTML{Template: handlers.templates, Name: name, Data: data})
}
