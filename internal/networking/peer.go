package networking

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/ridgeback/internal/metrics"
	"github.com/cuemby/ridgeback/internal/reactorcore"
	"github.com/cuemby/ridgeback/internal/rlog"
)

// DialTimeout bounds the TCP + TLS handshake portion of connect_outgoing,
// independent of the application handshake's own HandshakeTimeout.
const DialTimeout = 10 * time.Second

// Dial implements spec section 4.5's connect_outgoing: build a TLS
// connector seeded with our identity, open the TCP connection, complete
// the handshake, validate the peer certificate, and negotiate chain info.
func Dial(addr string, identity *Identity, ours ChainInfo, maxMessageSize uint32) (*Connection, error) {
	dialer := &net.Dialer{Timeout: DialTimeout}
	tlsConfig := identity.TLSConfig(nil)

	rawConn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	if err != nil {
		return nil, connErr(ErrTlsHandshake, err)
	}

	state := rawConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		_ = rawConn.Close()
		return nil, connErr(ErrNoClientCertificate, nil)
	}

	peerCert := state.PeerCertificates[0]
	peerID, err := nodeIDFromCertificate(peerCert)
	if err != nil {
		_ = rawConn.Close()
		return nil, connErr(ErrPeerCertificateInvalid, err)
	}

	if peerID == identity.NodeId {
		_ = rawConn.Close()
		return nil, connErr(ErrTlsHandshake, fmt.Errorf("dialed our own listener"))
	}

	theirs, err := negotiateOutgoing(rawConn, ours, maxMessageSize)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}

	connID, err := newConnectionID(state, identity.NodeId, peerID)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}

	return &Connection{
		ID:         connID,
		LocalID:    identity.NodeId,
		RemoteID:   peerID,
		Role:       RoleDialer,
		PeerAddr:   rawConn.RemoteAddr(),
		PublicAddr: theirs.PublicAddr,
		conn:       rawConn,
	}, nil
}

// readMessages is the message_reader task: it drains the framed stream,
// scheduling each decoded message as an IncomingMessageEvent, until stream
// end, the first I/O error, or shutdown.
func (c *Component[O]) readMessages(conn *Connection) {
	logger := rlog.WithComponent("networking").With().Str("peer_id", conn.RemoteID.String()).Logger()

	// Closing the connection on shutdown unblocks a ReadFrame in progress.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-c.shutdownCtx.Done():
			_ = conn.conn.Close()
		case <-done:
		}
	}()

	for {
		select {
		case <-c.shutdownCtx.Done():
			logger.Info().Msg("message reader received shutdown signal")
			c.dropConnection(conn, nil)
			return
		default:
		}

		msg, err := ReadFrame(conn.conn, c.maxMessageSize)
		if err != nil {
			if c.shutdownCtx.Err() != nil {
				logger.Info().Msg("message reader received shutdown signal")
				c.dropConnection(conn, nil)
				return
			}
			logger.Error().Err(err).Msg("message reader terminating")
			c.dropConnection(conn, err)
			return
		}

		if err := c.eventQueue.Schedule(IncomingMessageEvent{PeerID: conn.RemoteID, Msg: msg}, reactorcore.QueueNetworkIncoming); err != nil {
			logger.Error().Err(err).Msg("failed to schedule incoming message")
		}
	}
}

// sendMessages is the message_sender task: it pumps the peer's outbound
// mailbox to the sink. The handshake is not re-sent here; both directions
// already completed theirs during connection establishment.
func (c *Component[O]) sendMessages(conn *Connection, mailbox *outboundMailbox) {
	logger := rlog.WithComponent("networking").With().Str("peer_id", conn.RemoteID.String()).Logger()
	stop := c.shutdownCtx.Done()

	for {
		msg, ok := mailbox.recv(stop)
		if !ok {
			logger.Info().Msg("message sender stopping")
			return
		}

		if err := WriteFrame(conn.conn, msg, c.maxMessageSize); err != nil {
			logger.Error().Err(err).Msg("message sender terminating: message not sent")
			c.dropConnection(conn, err)
			return
		}
	}
}

func (c *Component[O]) dropConnection(conn *Connection, cause error) {
	_ = conn.conn.Close()
	c.removeMailbox(conn.RemoteID)
	metrics.ConnectionsFailed.WithLabelValues("dropped").Inc()
	if err := c.eventQueue.Schedule(OutgoingDroppedEvent{PeerID: conn.RemoteID, Err: cause}, reactorcore.QueueNetwork); err != nil {
		rlog.WithComponent("networking").Error().Err(err).Msg("failed to schedule dropped-connection event")
	}
}
