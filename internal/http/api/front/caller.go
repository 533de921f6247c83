package front

import (
	"net/http"
	"strings"

	"github.com/film4u/film4u-ai/internal/guard"
	"github.com/film4u/film4u-ai/internal/http/api/front/handlers"
	"github.com/film4u/film4u-ai/internal/security"
	"github.com/gin-gonic/gin"
)

const (
	// GuestSessionHeader carries the anonymous session id.
	GuestSessionHeader = "X-Guest-Session"
	// GuestSessionCookie carries the anonymous session id for browsers.
	GuestSessionCookie = "f4u_guest"

	guestCookieMaxAge = 365 * 24 * 60 * 60
	guestScopePrefix  = "s:"
)

// callerMiddleware resolves who is calling. A bearer token must be valid; without one the
// caller is a guest scoped by its signed session token. A missing or forged token is replaced
// by a new one and the request is charged to the new session.
func callerMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authHeader := strings.TrimSpace(c.GetHeader("Authorization")); authHeader != "" {
			token, ok := security.BearerToken(authHeader)
			if !ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
				return
			}
			claims, errJWT := security.ParseAccessToken(jwtSecret, token)
			if errJWT != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			c.Set(handlers.CallerKey, guard.Caller{UserID: claims.UserID()})
			c.Next()
			return
		}

		session, ok := guestSession(c, jwtSecret)
		if !ok {
			token := security.NewGuestSession(jwtSecret)
			session, _ = security.VerifyGuestSession(jwtSecret, token)
			c.Header(GuestSessionHeader, token)
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(GuestSessionCookie, token, guestCookieMaxAge, "/", "", c.Request.TLS != nil, true)
		}
		c.Set(handlers.CallerKey, guard.Caller{GuestScope: guestScopePrefix + session})
		c.Next()
	}
}

func guestSession(c *gin.Context, secret string) (string, bool) {
	if token := strings.TrimSpace(c.GetHeader(GuestSessionHeader)); token != "" {
		return security.VerifyGuestSession(secret, token)
	}
	if cookie, errCookie := c.Cookie(GuestSessionCookie); errCookie == nil {
		return security.VerifyGuestSession(secret, cookie)
	}
	return "", false
}
