package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anime-shed/defect-inspector-go/internal/session"
)

const sessionKey = "session"

// sessionMiddleware attaches the visitor's session, issuing a new cookie
// when the old one is missing or expired.
func sessionMiddleware(store *session.Store, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(cookieName)
		sess, created := store.GetOrCreate(id)
		if created {
			setSessionCookie(c, cookieName, sess.ID, 0)
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func setSessionCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", false, true)
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}
