// README: Auth middleware: verifies bearer tokens and exposes the caller identity to handlers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"urbanride/internal/infra"
	"urbanride/internal/types"
)

const (
	ctxCallerUID  = "caller_uid"
	ctxCallerRole = "caller_role"
)

// Auth rejects requests without a valid "Bearer <token>" header. The verified
// subject and its "role" claim are stored on the gin context.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			abort(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil {
			abort(c, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		c.Set(ctxCallerUID, token.UID)
		c.Set(ctxCallerRole, roleFromClaims(token.Claims))
		c.Next()
	}
}

func roleFromClaims(claims map[string]interface{}) types.Role {
	v, _ := claims["role"].(string)
	role := types.Role(strings.ToUpper(strings.TrimSpace(v)))
	if !role.Valid() {
		return ""
	}
	return role
}

// RequireRole lets only callers holding role through.
func RequireRole(role types.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) != role {
			abort(c, http.StatusForbidden, "forbidden", "requires role "+string(role))
			return
		}
		c.Next()
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxCallerUID)
}

func CallerRole(c *gin.Context) types.Role {
	v, _ := c.Get(ctxCallerRole)
	r, _ := v.(types.Role)
	return r
}

// Caller is the authenticated identity as the services expect it.
func Caller(c *gin.Context) types.Identity {
	return types.Identity{ID: types.ID(CallerUID(c)), Role: CallerRole(c)}
}

func abort(c *gin.Context, status int, reason, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "reason": reason, "message": message})
}
