package auth

import "net/http"

// TokenCookie is the cookie carrying the identity token.
const TokenCookie = "token"

// TokenFromRequest extracts the identity token from the request cookies.
// The second value is false when the cookie is missing or empty.
func TokenFromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(TokenCookie)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
