package middleware

import (
	"log"
	"net/http"
	"regexp"

	"goprep/internal/errors"

	"github.com/gin-gonic/gin"
)

const sessionKey = "session_id"

// SessionHeader carries the operator session on API requests
const SessionHeader = "X-Session-ID"

// DefaultSession is used when a request names no session
const DefaultSession = "default"

// session IDs name upload directories, so they are kept to a safe alphabet
var sessionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Session resolves the operator session from the X-Session-ID header or the
// session_id query parameter and stores it on the gin context.
func Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(SessionHeader)
		if id == "" {
			id = c.Query("session_id")
		}
		if id == "" {
			id = DefaultSession
		}
		if !sessionPattern.MatchString(id) {
			log.Printf("[Session] Rejecting malformed session id %q", id)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    errors.CodeInvalidInput,
				"message": "session id may only contain letters, digits, '-' and '_'",
			})
			return
		}
		c.Set(sessionKey, id)
		c.Next()
	}
}

// SessionID returns the session resolved by Session
func SessionID(c *gin.Context) string {
	if id := c.GetString(sessionKey); id != "" {
		return id
	}
	return DefaultSession
}
