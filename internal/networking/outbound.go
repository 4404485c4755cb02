package networking

import (
	"sync"

	"github.com/cuemby/ridgeback/internal/metrics"
)

// defaultOutboundCapacity bounds each peer's outbound mailbox. The
// original implementation's mailbox was unbounded; an unbounded mailbox
// lets a slow or wedged peer grow the process's memory without limit, so
// this rewrite bounds it and drops the oldest queued message to make room
// for the newest one, favoring fresh state over stale backlog.
const defaultOutboundCapacity = 1024

// outboundMailbox is a per-connection bounded queue feeding message_sender.
// Pushing past capacity drops the oldest queued message rather than
// blocking the producer or the newest message.
type outboundMailbox struct {
	peerID NodeId
	limit  int

	mu     sync.Mutex
	items  []WireMessage
	notify chan struct{}
	closed bool
}

func newOutboundMailbox(peerID NodeId, capacity int) *outboundMailbox {
	if capacity <= 0 {
		capacity = defaultOutboundCapacity
	}
	return &outboundMailbox{
		peerID: peerID,
		limit:  capacity,
		items:  make([]WireMessage, 0, capacity),
		notify: make(chan struct{}, 1),
	}
}

func (m *outboundMailbox) capacity() int { return m.limit }

// Send enqueues msg, dropping the oldest queued message if the mailbox is
// at capacity. Returns false if the mailbox has been closed.
func (m *outboundMailbox) Send(msg WireMessage) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if len(m.items) >= m.capacity() {
		m.items = m.items[1:]
		metrics.OutboundMessagesDropped.WithLabelValues(m.peerID.String()).Inc()
	}
	m.items = append(m.items, msg)
	depth := len(m.items)
	m.mu.Unlock()

	metrics.OutboundQueueLength.WithLabelValues(m.peerID.String()).Set(float64(depth))

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

// recv pops the oldest queued message, blocking on the notify channel if
// empty. It returns ok=false once the mailbox is closed and drained.
func (m *outboundMailbox) recv(stop <-chan struct{}) (WireMessage, bool) {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			msg := m.items[0]
			m.items = m.items[1:]
			depth := len(m.items)
			m.mu.Unlock()
			metrics.OutboundQueueLength.WithLabelValues(m.peerID.String()).Set(float64(depth))
			return msg, true
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return nil, false
		}

		select {
		case <-m.notify:
		case <-stop:
			return nil, false
		}
	}
}

func (m *outboundMailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}
