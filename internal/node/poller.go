package node

import (
	"sync"
	"time"

	"code.dogecoin.org/governor"

	"github.com/koinosops/nodeman/internal/state"
)

// DefaultPollInterval is how often the poller refreshes node status.
const DefaultPollInterval = 5 * time.Second

// NewPoller creates the background status poller. It refreshes the
// manager on every tick, republishes the snapshot to subscribers, and
// accounts uptime while the node is syncing or running.
func NewPoller(manager *Manager, store *state.Store, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		manager:  manager,
		store:    store,
		interval: interval,
	}
}

// Poller periodically reconciles node status. It owns no status of its
// own; the manager remains the single writer.
type Poller struct {
	governor.ServiceCtx
	manager  *Manager
	store    *state.Store
	interval time.Duration

	mu   sync.Mutex
	subs []chan NodeStatus
}

// Subscribe returns a channel receiving every refreshed snapshot. Slow
// subscribers miss ticks rather than stalling the poller.
func (p *Poller) Subscribe() <-chan NodeStatus {
	ch := make(chan NodeStatus, 1)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// goroutine
func (p *Poller) Run() {
	for {
		snap := p.manager.Refresh(p.Context)
		p.publish(snap)

		if p.store != nil && (snap.Status == StatusSyncing || snap.Status == StatusRunning) {
			p.store.IncrementUptime(uint64(p.interval.Seconds()))
		}

		if p.Sleep(p.interval) {
			return // stopping
		}
	}
}

func (p *Poller) publish(snap NodeStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- snap:
		default:
			// drop the stale snapshot so the fresh one can land
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
