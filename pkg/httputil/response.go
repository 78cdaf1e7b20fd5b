package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/smallbiznis/webauth/pkg/errors"
)

// ErrorTemplate is the page rendered for errors on HTML routes.
const ErrorTemplate = "error.html"

const htmlErrorsKey = "httputil.html_errors"

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ErrorPage is the data of ErrorTemplate.
type ErrorPage struct {
	Title    string
	AppTitle string
	Error    string
	AltURL   string
}

// HTMLErrors marks the routes below it as page routes: errors answered through
// RespondWithError render ErrorTemplate for clients that accept HTML.
func HTMLErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(htmlErrorsKey, true)
		c.Next()
	}
}

func wantsHTML(c *gin.Context) bool {
	return c.GetBool(htmlErrorsKey) && c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError sends an error response. The error is also attached to the
// context so the error middleware logs it.
func RespondWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	AbortWithError(c, apperrors.StatusCode(err), apperrors.PublicMessage(err))
}

// AbortWithError answers with status and message without attaching an error
// to the context.
func AbortWithError(c *gin.Context, status int, message string) {
	if wantsHTML(c) {
		retry := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			retry += "?" + q
		}
		c.HTML(status, ErrorTemplate, ErrorPage{
			Title:  http.StatusText(status),
			Error:  message,
			AltURL: retry,
		})
		c.Abort()
		return
	}

	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    status,
			Message: message,
		},
	})
}
