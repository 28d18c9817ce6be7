package paytech

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
)

// maxNotificationBytes bounds how much of an IPN body is read. Provider
// notifications are small; anything larger is not a legitimate payload.
const maxNotificationBytes = 64 << 10

var ErrUnsupportedContentType = errors.New("unsupported notification content type")

// notificationWire mirrors the provider's JSON field names. custom_field is
// kept raw because the provider sends it as either a string or an object.
type notificationWire struct {
	TypeEvent       string          `json:"type_event"`
	CustomField     json.RawMessage `json:"custom_field"`
	APIKeySHA256    string          `json:"api_key_sha256"`
	APISecretSHA256 string          `json:"api_secret_sha256"`
	PaymentMethod   string          `json:"payment_method"`
	RefPayment      string          `json:"ref_payment"`
	ClientPhone     string          `json:"client_phone"`
}

// ParseNotification reads a provider notification off an HTTP request.
// The provider posts either application/x-www-form-urlencoded or
// application/json depending on merchant settings; both carry the same
// fields.
func ParseNotification(r *http.Request) (*Notification, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
	if err != nil {
		return nil, fmt.Errorf("read notification body: %w", err)
	}

	contentType := r.Header.Get("Content-Type")
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	switch {
	case mediaType == "application/json":
		return parseJSONNotification(body)
	case mediaType == "application/x-www-form-urlencoded" || mediaType == "":
		return parseFormNotification(body)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
}

func parseJSONNotification(body []byte) (*Notification, error) {
	var wire notificationWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &Notification{
		TypeEvent:       wire.TypeEvent,
		CustomField:     string(wire.CustomField),
		APIKeyDigest:    wire.APIKeySHA256,
		APISecretDigest: wire.APISecretSHA256,
		PaymentMethod:   wire.PaymentMethod,
		PaymentRef:      wire.RefPayment,
		ClientPhone:     wire.ClientPhone,
		Raw:             body,
	}, nil
}

func parseFormNotification(body []byte) (*Notification, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("decode notification form: %w", err)
	}
	n := &Notification{
		TypeEvent:       values.Get("type_event"),
		CustomField:     values.Get("custom_field"),
		APIKeyDigest:    values.Get("api_key_sha256"),
		APISecretDigest: values.Get("api_secret_sha256"),
		PaymentMethod:   values.Get("payment_method"),
		PaymentRef:      values.Get("ref_payment"),
		ClientPhone:     values.Get("client_phone"),
		Raw:             body,
	}
	// Form values are plain strings; a custom field that decodes as JSON
	// stays as-is, anything else is normalized to a JSON string so
	// RefCommand sees valid JSON either way.
	if cf := n.CustomField; cf != "" && !json.Valid([]byte(cf)) {
		quoted, _ := json.Marshal(cf)
		n.CustomField = string(quoted)
	}
	return n, nil
}
