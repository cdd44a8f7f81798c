// Package events is a small in-process pub/sub bus. Handlers emit events
// after successful mutations; subscribers (websocket broadcasters, cache
// invalidation) react without blocking the request.
package events

import "sync"

// Server lifecycle event names.
const (
	ServerPowerChanged   = "server.power.changed"
	BackupCreated        = "server.backup.created"
	BackupDeleted        = "server.backup.deleted"
	BackupRestored       = "server.backup.restored"
	FirewallRuleCreated  = "server.firewall.rule.created"
	FirewallRuleUpdated  = "server.firewall.rule.updated"
	FirewallRuleDeleted  = "server.firewall.rule.deleted"
	ProxyCreated         = "server.proxy.created"
	ProxyDeleted         = "server.proxy.deleted"
	DatabaseCreated      = "server.database.created"
	DatabaseDeleted      = "server.database.deleted"
	ImportStarted        = "server.import.started"
	FastDLChanged        = "server.fastdl.changed"
	ScheduleTaskExecuted = "server.schedule.task.executed"
)

// Handler receives the event payload. Payloads are read-only by
// convention.
type Handler func(payload map[string]interface{})

// Bus dispatches events to subscribers. Emit is fire-and-forget; each
// subscriber runs in its own goroutine and failures are invisible to the
// emitter.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers fn for the named event.
func (b *Bus) Subscribe(event string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], fn)
}

// Emit dispatches payload to every subscriber of event.
func (b *Bus) Emit(event string, payload map[string]interface{}) {
	b.mu.RLock()
	subs := make([]Handler, len(b.handlers[event]))
	copy(subs, b.handlers[event])
	b.mu.RUnlock()

	for _, fn := range subs {
		go fn(payload)
	}
}
