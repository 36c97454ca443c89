package events

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/tolchain/consensuscore/crypto"
)

// EventType labels what happened. Consensus-core events describe pipeline
// progress (a transaction committed or was rejected, a block committed, a
// view change fired) rather than application-level effects — those belong
// to whatever instruction set runs on top of wsv.WorldStateView.
type EventType string

const (
	EventTxCommitted    EventType = "tx_committed"
	EventTxRejected     EventType = "tx_rejected"
	EventBlockCommitted EventType = "block_committed"
	EventViewChanged    EventType = "view_changed"
)

// Event carries a typed payload emitted after a pipeline state change. A
// block may carry a list of Events as EventRecommendations: hints to peers
// about what the committing node observed. Block decode and block
// application do not re-derive or check them.
type Event struct {
	Type        EventType      `json:"type"`
	TxHash      string         `json:"tx_hash,omitempty"`
	BlockHeight uint64         `json:"block_height"`
	Data        map[string]any `json:"data,omitempty"`
}

// CanonicalBytes implements crypto.Encodable so Events can be embedded in a
// BlockPayload's EventRecommendations and covered by its hash. Data keys are
// sorted so the encoding is deterministic regardless of map iteration order.
func (ev Event) CanonicalBytes() []byte {
	e := crypto.NewEncoder()
	e.String(string(ev.Type))
	e.String(ev.TxHash)
	e.Uint64(ev.BlockHeight)
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.Uint64(uint64(len(keys)))
	for _, k := range keys {
		e.String(k)
		e.String(fmtValue(ev.Data[k]))
	}
	return e.Out()
}

func fmtValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot crash the node or halt block production.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[events] handler panicked for %s: %v", ev.Type, r)
				}
			}()
			h(ev)
		}()
	}
}
