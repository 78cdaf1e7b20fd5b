package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/webauth/internal/csrf"
	apperrors "github.com/smallbiznis/webauth/pkg/errors"
	"github.com/smallbiznis/webauth/pkg/httputil"
)

// CSRF checks that form posts carry the token issued with the form, both in
// the form field (or header) and in the cookie.
func CSRF(m *csrf.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		submitted := c.PostForm(csrf.FieldName)
		if submitted == "" {
			submitted = c.GetHeader(csrf.HeaderName)
		}
		cookie, _ := c.Cookie(csrf.CookieName)

		if err := m.VerifyPair(submitted, cookie, time.Now()); err != nil {
			httputil.RespondWithError(c, apperrors.Forbidden("the form has expired, reload the page and try again", err))
			return
		}
		c.Next()
	}
}
