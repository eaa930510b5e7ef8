package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID = "auth.user_id"
	ctxRole   = "auth.role"
)

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Middleware requires a bearer token on every /api/ route. A nil verifier
// disables auth entirely, which is how local paper runs are configured.
func Middleware(j *JWT) gin.HandlerFunc {
	return func(c *gin.Context) {
		if j == nil || len(j.Secret) == 0 || !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Next()
			return
		}
		tok := bearerToken(c.GetHeader("Authorization"))
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Code: http.StatusUnauthorized, Message: "missing bearer token"})
			return
		}
		claims, err := j.Verify(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Code: http.StatusUnauthorized, Message: "invalid token"})
			return
		}
		c.Set(ctxUserID, claims.Subject)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// UserID returns the authenticated subject, or "" when auth is off.
func UserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func IsAdmin(c *gin.Context) bool {
	return c.GetString(ctxRole) == RoleAdmin
}

// CanActFor reports whether the caller may create or change plans owned by
// userID. With auth disabled everyone may.
func CanActFor(c *gin.Context, userID string) bool {
	sub := UserID(c)
	if sub == "" {
		return true
	}
	return sub == userID || IsAdmin(c)
}

func bearerToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
