package httpx

import (
	"net/http"
	"time"
)

// CookieOptions are shared by every cookie the service sets.
type CookieOptions struct {
	Secure bool
	Domain string
}

// SetCookie sets an HttpOnly, SameSite=Lax cookie scoped to the whole site.
func (o CookieOptions) SetCookie(w http.ResponseWriter, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   o.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the named cookie on the client.
func (o CookieOptions) ClearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   o.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// CookieValue returns the named cookie's value, empty when absent.
func CookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
