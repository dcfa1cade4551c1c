package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the part of an access token the booking service reads.
type Claims struct {
	Subject     string   `json:"sub"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// AllRoles merges top-level and realm roles.
func (c Claims) AllRoles() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range append(append([]string{}, c.Roles...), c.RealmAccess.Roles...) {
		if r != "" && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// ParseUnverified reads the claims of a JWT without checking its signature.
// Only for local development where no identity provider is configured.
func ParseUnverified(tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, errors.New("empty token")
	}

	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("failed to parse token: %w", err)
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid token claims")
	}

	var c Claims
	c.Subject, _ = mc["sub"].(string)
	c.Email, _ = mc["email"].(string)
	c.Roles = stringList(mc["roles"])
	if ra, ok := mc["realm_access"].(map[string]interface{}); ok {
		c.RealmAccess.Roles = stringList(ra["roles"])
	}
	if c.Subject == "" {
		return Claims{}, errors.New("subject claim not found in token")
	}
	return c, nil
}

func stringList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
