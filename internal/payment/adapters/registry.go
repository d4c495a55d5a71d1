// Package adapters normalizes payment-gateway webhooks into one canonical
// event shape the ingestion service can reconcile.
package adapters

import (
	"errors"
	"net/http"
	"strings"
)

type EventType string

const (
	// EventSettled means the gateway confirmed the funds; a payment record
	// is created and reconciled.
	EventSettled EventType = "settled"
	// EventFailed means the gateway gave up on the charge; recorded only.
	EventFailed EventType = "failed"
	// EventIgnored covers intermediate gateway states with no billing effect.
	EventIgnored EventType = "ignored"
)

// GatewayEvent is the canonical form of one gateway webhook.
type GatewayEvent struct {
	ProviderEventID string
	InvoiceID       string
	EventType       EventType
	AmountCents     int64
	Currency        string
}

type Adapter interface {
	Provider() string
	// Verify authenticates the raw payload against the delivery headers
	// before anything is parsed.
	Verify(headers http.Header, payload []byte) error
	Parse(payload []byte) (GatewayEvent, error)
}

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
)

type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	registry := &Registry{adapters: map[string]Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		provider := strings.ToLower(strings.TrimSpace(adapter.Provider()))
		if provider == "" {
			continue
		}
		registry.adapters[provider] = adapter
	}
	return registry
}

func (r *Registry) Get(provider string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	adapter, ok := r.adapters[strings.ToLower(strings.TrimSpace(provider))]
	return adapter, ok
}
