package utils

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Cookie names used for browser authentication transport.  Non-browser
// clients may instead send the access token as a bearer header.
const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"

	// RefreshCookiePath scopes the refresh cookie to the auth endpoints
	// only, so it is never sent to the rest of the API surface.
	RefreshCookiePath = "/api/v1/auth"
)

// SetAuthCookies writes the access and refresh tokens as http-only,
// same-site cookies.  Secure is set outside development so the cookies only
// travel over TLS in production.
func SetAuthCookies(c echo.Context, access AccessToken, refresh RefreshToken, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     AccessCookieName,
		Value:    access.Token,
		Path:     "/",
		Expires:  access.Exp,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookieName,
		Value:    refresh.Raw,
		Path:     RefreshCookiePath,
		Expires:  refresh.Exp,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearAuthCookies expires both auth cookies.
func ClearAuthCookies(c echo.Context, secure bool) {
	expired := time.Unix(0, 0)
	c.SetCookie(&http.Cookie{
		Name:     AccessCookieName,
		Value:    "",
		Path:     "/",
		Expires:  expired,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     RefreshCookiePath,
		Expires:  expired,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}
