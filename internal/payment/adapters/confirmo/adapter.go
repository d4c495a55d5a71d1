// Package confirmo adapts Confirmo crypto-payment webhooks.
package confirmo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hashridge/hostbill/internal/payment/adapters"
)

const (
	providerName    = "confirmo"
	signatureHeader = "X-Confirmo-Signature"
)

type Adapter struct {
	secret []byte
}

func New(secret string) *Adapter {
	return &Adapter{secret: []byte(strings.TrimSpace(secret))}
}

func (a *Adapter) Provider() string { return providerName }

// Verify checks the hex HMAC-SHA256 of the raw body against the signature
// header. An unconfigured secret fails closed.
func (a *Adapter) Verify(headers http.Header, payload []byte) error {
	if len(a.secret) == 0 {
		return adapters.ErrInvalidSignature
	}

	signature := strings.TrimSpace(headers.Get(signatureHeader))
	if signature == "" {
		return adapters.ErrInvalidSignature
	}
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return adapters.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return adapters.ErrInvalidSignature
	}
	return nil
}

type webhookPayload struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

func (a *Adapter) Parse(payload []byte) (adapters.GatewayEvent, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return adapters.GatewayEvent{}, adapters.ErrInvalidPayload
	}
	if body.ID == "" {
		return adapters.GatewayEvent{}, adapters.ErrInvalidPayload
	}

	event := adapters.GatewayEvent{
		ProviderEventID: body.ID,
		InvoiceID:       strings.TrimSpace(body.Reference),
		Currency:        strings.ToUpper(strings.TrimSpace(body.Currency)),
	}

	switch strings.ToLower(strings.TrimSpace(body.Status)) {
	case "paid", "confirmed":
		event.EventType = adapters.EventSettled
	case "expired", "error":
		event.EventType = adapters.EventFailed
	default:
		// Intermediate states (active, prepared, ...) carry no billing
		// meaning; record and move on.
		event.EventType = adapters.EventIgnored
	}

	if body.Amount != "" {
		cents, err := parseAmount(body.Amount)
		if err != nil {
			return adapters.GatewayEvent{}, adapters.ErrInvalidPayload
		}
		event.AmountCents = cents
	}

	return event, nil
}

// parseAmount converts a decimal string like "255.50" to minor units
// without going through floats.
func parseAmount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	negative := strings.HasPrefix(raw, "-")
	raw = strings.TrimPrefix(raw, "-")

	whole, frac, _ := strings.Cut(raw, ".")
	if whole == "" {
		whole = "0"
	}
	switch len(frac) {
	case 0:
		frac = "00"
	case 1:
		frac += "0"
	case 2:
	default:
		return 0, fmt.Errorf("amount %q has too many decimal places", raw)
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, err
	}

	total := units*100 + cents
	if negative {
		total = -total
	}
	return total, nil
}
