// Package paytech implements the wire protocol of the hosted payment
// provider: the outbound payment-request call and the inbound payment
// notification (IPN) payload, including its digest-based authentication.
package paytech

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// SaleCompleteEvent is the only notification event that confirms a payment.
const SaleCompleteEvent = "sale_complete"

var (
	ErrMissingRefCommand = errors.New("custom field carries no ref_command")
	ErrNoRedirect        = errors.New("provider response missing redirect URL")
)

// Credentials is the merchant's API key pair. The provider proves knowledge
// of it on every notification by sending SHA-256 digests of both values.
type Credentials struct {
	APIKey    string
	APISecret string
}

// MatchDigests compares the hex SHA-256 of the configured key and secret
// against the digests carried by a notification. Comparison is constant
// time so the check cannot be used as a timing oracle.
func (c Credentials) MatchDigests(keyDigest, secretDigest string) bool {
	keyOK := constantTimeEqual(sha256Hex(c.APIKey), keyDigest)
	secretOK := constantTimeEqual(sha256Hex(c.APISecret), secretDigest)
	return keyOK && secretOK
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Notification is an inbound payment notification, already lifted off the
// wire (the provider posts it form-encoded or as JSON, see ParseNotification).
type Notification struct {
	TypeEvent       string // e.g. "sale_complete", "sale_canceled"
	CustomField     string // opaque; round-tripped from the payment request
	APIKeyDigest    string
	APISecretDigest string
	PaymentMethod   string
	PaymentRef      string // provider-assigned payment reference
	ClientPhone     string
	Raw             []byte // original payload, kept for audit
}

// customField is the structure the merchant put into the payment request.
type customField struct {
	RefCommand string `json:"ref_command"`
}

// RefCommand decodes the notification's custom field and extracts the
// purchase reference. The provider round-trips custom_field verbatim, but
// depending on transport it arrives either as a JSON object or as a
// JSON-encoded string containing that object.
func (n *Notification) RefCommand() (string, error) {
	raw := []byte(n.CustomField)
	if len(raw) == 0 {
		return "", ErrMissingRefCommand
	}

	// Double-encoded variant: "{\"ref_command\":...}"
	var inner string
	if err := json.Unmarshal(raw, &inner); err == nil {
		raw = []byte(inner)
	}

	var cf customField
	if err := json.Unmarshal(raw, &cf); err != nil {
		return "", fmt.Errorf("decode custom field: %w", err)
	}
	if cf.RefCommand == "" {
		return "", ErrMissingRefCommand
	}
	return cf.RefCommand, nil
}

// EncodeCustomField builds the custom_field value sent with a payment
// request so it comes back attached to the notification.
func EncodeCustomField(refCommand string) string {
	data, _ := json.Marshal(customField{RefCommand: refCommand})
	return string(data)
}
