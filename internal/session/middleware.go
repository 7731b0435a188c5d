package session

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xevora/storefront/internal/identity"
)

const principalContextKey = "session_principal"

// RequirePrincipal rejects requests without a session and injects the principal.
func (manager *Manager) RequirePrincipal() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		principal, err := manager.Lookup(contextGin.Request)
		if err != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		contextGin.Set(principalContextKey, principal)
		contextGin.Next()
	}
}

// PrincipalFrom returns the principal injected by RequirePrincipal.
func PrincipalFrom(contextGin *gin.Context) (identity.Principal, bool) {
	value, exists := contextGin.Get(principalContextKey)
	if !exists {
		return identity.Principal{}, false
	}
	principal, ok := value.(identity.Principal)
	return principal, ok
}
