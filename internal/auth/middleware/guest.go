package auth

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	guestCookie = "me_guest"
	guestPrefix = "guest|"
)

// POST /auth/guest
// Issues a student token for an anonymous taker. The signed cookie lets the
// same browser come back as the same guest, and so resume its attempt, while
// the token is still valid.
func GuestLoginHandler(a *AuthService, secureCookie bool) http.HandlerFunc {
	type out struct {
		AccessToken string `json:"access_token"`
		Username    string `json:"username"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sub := ""
		if c, err := r.Cookie(guestCookie); err == nil && c.Value != "" {
			if claims, err := a.Parse(c.Value); err == nil && claims.Role == "student" && strings.HasPrefix(claims.Sub, guestPrefix) {
				sub = claims.Sub
			}
		}
		if sub == "" {
			sub = guestPrefix + uuid.NewString()
		}

		tok, err := a.IssueJWT(sub, "student")
		if err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     guestCookie,
			Value:    tok,
			Path:     "/",
			HttpOnly: true,
			Secure:   secureCookie,
			SameSite: http.SameSiteLaxMode,
			Expires:  time.Now().Add(a.ttl),
		})
		w.Header().Set("Content-Type", "application/json")
		id := strings.TrimPrefix(sub, guestPrefix)
		_ = json.NewEncoder(w).Encode(out{AccessToken: tok, Username: "guest-" + id[:8]})
	}
}
