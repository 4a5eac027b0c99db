// Package unsubscribe maps email addresses to the public unsubscribe link
// embedded in every campaign message. Tokens are reversible and carry no
// secret: anyone holding a token can recover the address.
package unsubscribe

import (
	"encoding/base64"
	"fmt"
	"strings"
)

func Token(email string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(email))
}

// Email reverses Token.
func Email(token string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("invalid unsubscribe token: %w", err)
	}
	return string(b), nil
}

type Generator struct {
	BaseURL string
}

func (g Generator) URL(email string) string {
	return strings.TrimRight(g.BaseURL, "/") + "/unsubscribe/" + Token(email)
}
