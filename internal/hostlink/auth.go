package hostlink

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashToken bcrypt hash of a controller token (for host.token_hash).
func HashToken(token string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Authorizer checks controller tokens. Zero value accepts everyone.
type Authorizer struct {
	Token     string
	TokenHash string
}

func (a Authorizer) enabled() bool { return a.Token != "" || a.TokenHash != "" }

// Check true if token is accepted.
func (a Authorizer) Check(token string) bool {
	switch {
	case a.TokenHash != "":
		return bcrypt.CompareHashAndPassword([]byte(a.TokenHash), []byte(token)) == nil
	case a.Token != "":
		return subtle.ConstantTimeCompare([]byte(a.Token), []byte(token)) == 1
	}
	return true
}

// requestToken: Bearer header or ?token=.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
