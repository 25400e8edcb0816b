// Package compliance signs unsubscribe links and builds the list-unsubscribe
// headers carried by every outgoing message.
package compliance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"

	"github.com/dukex/mailflow/pkg/models"
)

const (
	HeaderListUnsubscribe     = "List-Unsubscribe"
	HeaderListUnsubscribePost = "List-Unsubscribe-Post"
	OneClickValue             = "List-Unsubscribe=One-Click"
)

var (
	ErrMissingSecret = errors.New("unsubscribe secret is required")
	ErrInvalidToken  = errors.New("invalid unsubscribe token")
)

// Signer issues and verifies unsubscribe tokens for recipients.
type Signer struct {
	secret  []byte
	baseURL string
}

// NewSigner creates a signer. baseURL is the public URL of the unsubscribe
// endpoint, e.g. https://mail.example.com/unsubscribe.
func NewSigner(secret, baseURL string) (*Signer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	return &Signer{secret: []byte(secret), baseURL: strings.TrimRight(baseURL, "?")}, nil
}

// Token is hex(HMAC-SHA256(secret, tenantID NUL lower(email))). A token only
// unsubscribes the recipient from the tenant it was issued for.
func (s *Signer) Token(tenantID, email string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(tenantID))
	mac.Write([]byte{0})
	mac.Write([]byte(models.NormalizeEmail(email)))

	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks token against the tenant and email in constant time.
func (s *Signer) Verify(tenantID, email, token string) error {
	got, err := hex.DecodeString(token)
	if err != nil {
		return ErrInvalidToken
	}

	want, _ := hex.DecodeString(s.Token(tenantID, email))
	if !hmac.Equal(got, want) {
		return ErrInvalidToken
	}

	return nil
}

// Link returns the one-click unsubscribe URL for the recipient.
func (s *Signer) Link(tenantID, email string) string {
	q := url.Values{}
	q.Set("email", models.NormalizeEmail(email))
	q.Set("tenant", tenantID)
	q.Set("token", s.Token(tenantID, email))

	sep := "?"
	if strings.Contains(s.baseURL, "?") {
		sep = "&"
	}

	return s.baseURL + sep + q.Encode()
}

// Headers returns the List-Unsubscribe header pair for the recipient.
func (s *Signer) Headers(tenantID, email string) map[string]string {
	return map[string]string{
		HeaderListUnsubscribe:     "<" + s.Link(tenantID, email) + ">",
		HeaderListUnsubscribePost: OneClickValue,
	}
}
