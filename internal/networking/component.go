package networking

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ridgeback/internal/metrics"
	"github.com/cuemby/ridgeback/internal/reactorcore"
	"github.com/cuemby/ridgeback/internal/rlog"
	"github.com/cuemby/ridgeback/internal/util"
)

// maxConcurrentHandshakes bounds how many inbound connections can be
// mid-handshake at once, so a burst of connection attempts cannot spawn an
// unbounded number of goroutines ahead of TLS and application negotiation.
const maxConcurrentHandshakes = 256

// minAcceptBackoff and maxAcceptBackoff bound the exponential backoff
// applied to repeated Accept errors. The original implementation logged
// and immediately retried on every accept error; under local resource
// exhaustion (too many open files) that spins the accept loop at 100% CPU.
// This rewrite backs off exponentially, capped, and resets after a
// successful accept.
const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = 1 * time.Second
)

// Component is the networking component: it owns the listener, the set of
// established peer connections, and schedules every inbound outcome as a
// reactor event via its EventQueueHandle. O is the reactor-wide event type.
type Component[O any] struct {
	identity       *Identity
	ours           ChainInfo
	maxMessageSize uint32
	eventQueue     reactorcore.EventQueueHandle[Event, O]

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	handshakeSem *util.Semaphore[struct{}]

	mu        sync.Mutex
	listener  net.Listener
	mailboxes map[NodeId]*outboundMailbox
}

// New constructs the networking component, starts listening on
// bindAddress, and spawns the accept loop. It returns the component and an
// empty initial effect set: all of this component's work happens via
// background goroutines scheduling events directly, not via Effects.
func New[O any](bindAddress string, identity *Identity, ours ChainInfo, maxMessageSize uint32, eventQueue reactorcore.EventQueueHandle[Event, O]) (*Component[O], reactorcore.Effects[O], error) {
	tlsConfig := identity.TLSConfig(nil)

	listener, err := tls.Listen("tcp", bindAddress, tlsConfig)
	if err != nil {
		return nil, nil, connErr(ErrAcceptorCreation, fmt.Errorf("failed to bind %s: %w", bindAddress, err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Component[O]{
		identity:       identity,
		ours:           ours,
		maxMessageSize: maxMessageSize,
		eventQueue:     eventQueue,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
		listener:       listener,
		mailboxes:      make(map[NodeId]*outboundMailbox),
		handshakeSem:   util.NewSemaphore(maxConcurrentHandshakes, struct{}{}),
	}

	metrics.ComponentsConstructed.Inc()
	go c.acceptLoop()

	return c, nil, nil
}

// HandleEvent satisfies reactorcore.Component. The networking component's
// own background tasks do the actual network I/O; handle_event here only
// reacts to outcomes already computed, e.g. retiring a dropped peer's
// mailbox and counters.
func (c *Component[O]) HandleEvent(eb reactorcore.EffectBuilder[O], rng *rand.Rand, event Event) reactorcore.Effects[O] {
	switch ev := event.(type) {
	case OutgoingDroppedEvent:
		c.removeMailbox(ev.PeerID)
		return nil
	case IncomingConnectionEvent:
		if ev.Outcome.Kind == IncomingEstablished {
			c.trackEstablished(ev.Outcome.Conn)
		}
		return nil
	case DialResultEvent:
		if ev.Conn != nil {
			c.trackEstablished(ev.Conn)
		}
		return nil
	default:
		return nil
	}
}

// Shutdown cancels the shutdown context, closing the listener and
// unblocking every reader/sender task's select race.
func (c *Component[O]) Shutdown() {
	c.shutdownCancel()
	c.mu.Lock()
	listener := c.listener
	c.mu.Unlock()
	if listener != nil {
		_ = listener.Close()
	}
}

// Send enqueues msg for peerID's sender task, bounded drop-oldest.
// Reports false if no mailbox is tracked for peerID (the peer is not, or
// no longer, connected).
func (c *Component[O]) Send(peerID NodeId, msg WireMessage) bool {
	c.mu.Lock()
	mailbox, ok := c.mailboxes[peerID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return mailbox.Send(msg)
}

func (c *Component[O]) trackEstablished(conn *Connection) {
	mailbox := newOutboundMailbox(conn.RemoteID, defaultOutboundCapacity)
	c.mu.Lock()
	c.mailboxes[conn.RemoteID] = mailbox
	c.mu.Unlock()

	role := "listener"
	if conn.Role == RoleDialer {
		role = "dialer"
	}
	metrics.ConnectionsEstablished.WithLabelValues(role).Inc()

	go c.readMessages(conn)
	go c.sendMessages(conn, mailbox)
}

func (c *Component[O]) removeMailbox(peerID NodeId) {
	c.mu.Lock()
	mailbox, ok := c.mailboxes[peerID]
	delete(c.mailboxes, peerID)
	c.mu.Unlock()
	if ok {
		mailbox.Close()
	}
}

func (c *Component[O]) acceptLoop() {
	logger := rlog.WithComponent("networking")
	backoff := minAcceptBackoff

	for {
		select {
		case <-c.shutdownCtx.Done():
			logger.Info().Msg("accept loop received shutdown signal")
			return
		default:
		}

		conn, err := c.listener.Accept()
		if err != nil {
			select {
			case <-c.shutdownCtx.Done():
				return
			default:
			}

			logger.Error().Err(err).Dur("backoff", backoff).Msg("accept failed, backing off")
			metrics.ConnectionsFailed.WithLabelValues("accept").Inc()

			select {
			case <-time.After(backoff):
			case <-c.shutdownCtx.Done():
				return
			}
			backoff *= 2
			if backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			continue
		}

		backoff = minAcceptBackoff
		peerLogger := logger.With().Str("peer_addr", conn.RemoteAddr().String()).Logger()

		guard, err := c.handshakeSem.Acquire(c.shutdownCtx)
		if err != nil {
			_ = conn.Close()
			return
		}
		go func() {
			defer guard.Release()
			c.handleIncoming(conn, peerLogger)
		}()
	}
}

func (c *Component[O]) handleIncoming(conn net.Conn, logger zerolog.Logger) {
	outcome := c.doHandleIncoming(conn)

	kind := reactorcore.QueueNetworkIncoming
	if err := c.eventQueue.Schedule(IncomingConnectionEvent{Outcome: outcome}, kind); err != nil {
		logger.Error().Err(err).Msg("failed to schedule incoming connection outcome")
		if outcome.Kind == IncomingEstablished {
			_ = conn.Close()
		}
	}
}

// doHandleIncoming implements spec section 4.5's handle_incoming: TLS is
// already accepted by the listener's tls.Config by the time Accept
// returns a *tls.Conn, so here we drive the handshake explicitly (Go's
// tls.Listener defers the handshake to the first read/write), validate the
// peer certificate, check for loopback, and negotiate the application
// handshake.
func (c *Component[O]) doHandleIncoming(conn net.Conn) IncomingConnection {
	peerAddr := conn.RemoteAddr()
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		_ = conn.Close()
		return IncomingConnection{Kind: IncomingFailedEarly, PeerAddr: peerAddr, Err: connErr(ErrAcceptorCreation, fmt.Errorf("listener did not produce a TLS connection"))}
	}

	if err := tlsConn.Handshake(); err != nil {
		_ = conn.Close()
		return IncomingConnection{Kind: IncomingFailedEarly, PeerAddr: peerAddr, Err: connErr(ErrTlsHandshake, err)}
	}

	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		_ = conn.Close()
		return IncomingConnection{Kind: IncomingFailedEarly, PeerAddr: peerAddr, Err: connErr(ErrNoClientCertificate, nil)}
	}

	peerCert := state.PeerCertificates[0]
	peerID, err := nodeIDFromCertificate(peerCert)
	if err != nil {
		_ = conn.Close()
		return IncomingConnection{Kind: IncomingFailedEarly, PeerAddr: peerAddr, Err: connErr(ErrPeerCertificateInvalid, err)}
	}

	if peerID == c.identity.NodeId {
		_ = conn.Close()
		return IncomingConnection{Kind: IncomingLoopback, PeerAddr: peerAddr, PeerID: &peerID}
	}

	theirs, err := negotiateIncoming(tlsConn, c.ours, c.maxMessageSize)
	if err != nil {
		_ = conn.Close()
		return IncomingConnection{Kind: IncomingFailed, PeerAddr: peerAddr, Err: err, PeerID: &peerID}
	}

	connID, err := newConnectionID(state, c.identity.NodeId, peerID)
	if err != nil {
		_ = conn.Close()
		return IncomingConnection{Kind: IncomingFailed, PeerAddr: peerAddr, Err: err, PeerID: &peerID}
	}

	return IncomingConnection{
		Kind:     IncomingEstablished,
		PeerAddr: peerAddr,
		PeerID:   &peerID,
		Conn: &Connection{
			ID:         connID,
			LocalID:    c.identity.NodeId,
			RemoteID:   peerID,
			Role:       RoleListener,
			PeerAddr:   peerAddr,
			PublicAddr: theirs.PublicAddr,
			conn:       tlsConn,
		},
	}
}
