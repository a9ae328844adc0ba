package auth

import (
	"errors"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/jimdaga/mediecho/internal/apierror"
	"github.com/jimdaga/mediecho/internal/models"
	"gorm.io/gorm"
)

// Context and session keys
const (
	ContextUserKey   = "user"
	ContextUserIDKey = "user_id"
	sessionTokenKey  = "token"
)

// RequireAuth resolves the caller from a bearer token or the session cookie,
// loads the user, and attaches it to the request context.
func RequireAuth(db *gorm.DB, tokens *TokenService, errs apierror.Responder) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			token = sessionToken(c)
		}
		if token == "" {
			errs.Respond(c, apierror.Unauthenticated("Not authorized to access this route"))
			return
		}

		claims, err := tokens.ValidateAccessToken(token)
		if err != nil {
			errs.Respond(c, apierror.Unauthenticated("Not authorized to access this route"))
			return
		}

		var user models.User
		if err := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				errs.Respond(c, apierror.Unauthenticated("User not found"))
				return
			}
			errs.Respond(c, apierror.Internal(err))
			return
		}

		// User is authenticated - set context values for downstream handlers
		c.Set(ContextUserKey, &user)
		c.Set(ContextUserIDKey, user.ID)

		c.Next()
	}
}

// CurrentUser returns the user attached by RequireAuth
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func sessionToken(c *gin.Context) string {
	// Session middleware is optional; sessions.Default panics without it
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return ""
	}
	token, _ := sessions.Default(c).Get(sessionTokenKey).(string)
	return token
}
