package outbox

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
	"github.com/Joelisking/marketplace-api-sub000/pkg/outbox/payloads"
)

type decoderFunc func(payload json.RawMessage) (interface{}, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry maps (event type, version) to a payload decoder so the
// consumer side can reconstruct typed events.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]decoderFunc)}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]; ok {
		return decoder(payload)
	}
	return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
}

func decodeInto[T any](payload json.RawMessage) (interface{}, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DefaultDecoders returns a registry preloaded with every event the platform
// currently emits, all at version 1.
func DefaultDecoders() *DecoderRegistry {
	registry := NewDecoderRegistry()
	registry.Register(enums.EventOrderCreated, 1, decodeInto[payloads.OrderCreatedEvent])
	registry.Register(enums.EventOrderCancelled, 1, decodeInto[payloads.OrderCancelledEvent])
	registry.Register(enums.EventPaymentSettled, 1, decodeInto[payloads.PaymentSettledEvent])
	registry.Register(enums.EventPaymentRefunded, 1, decodeInto[payloads.PaymentRefundedEvent])
	return registry
}
