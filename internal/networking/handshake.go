package networking

import (
	"fmt"
	"net"
	"time"

	"github.com/cuemby/ridgeback/internal/metrics"
)

// HandshakeTimeout bounds both the send and the receive side of handshake
// negotiation, per spec section 4.5.
const HandshakeTimeout = 20 * time.Second

// negotiateIncoming performs the listener side of handshake negotiation
// over an already TLS-accepted conn: send our handshake, read exactly one
// message, and require it to be a matching-network Handshake.
func negotiateIncoming(conn net.Conn, ours ChainInfo, maxMessageSize uint32) (ChainInfo, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.HandshakeDuration)

	if err := conn.SetWriteDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		return ChainInfo{}, connErr(ErrHandshakeSend, err)
	}
	if err := WriteFrame(conn, ours.ToHandshake(), maxMessageSize); err != nil {
		return ChainInfo{}, connErr(ErrHandshakeSend, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		return ChainInfo{}, connErr(ErrHandshakeRecv, err)
	}
	msg, err := ReadFrame(conn, maxMessageSize)
	if err != nil {
		return ChainInfo{}, connErr(ErrHandshakeRecv, err)
	}

	hs, ok := msg.(Handshake)
	if !ok {
		return ChainInfo{}, connErr(ErrDidNotSendHandshake, nil)
	}
	if hs.NetworkName != ours.NetworkName {
		return ChainInfo{}, connErr(ErrWrongNetwork, fmt.Errorf("peer network %q != ours %q", hs.NetworkName, ours.NetworkName))
	}

	theirs := ChainInfoFromHandshake(hs)
	if !Compatible(ours, theirs) {
		return ChainInfo{}, connErr(ErrWrongNetwork, fmt.Errorf("chainspec digests incompatible"))
	}

	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})
	return theirs, nil
}

// negotiateOutgoing is the symmetric dialer-side negotiation: the dialer
// also sends first (message_sender's convention of sending the handshake
// as its first message applies equally to both roles), then waits for the
// listener's reply.
func negotiateOutgoing(conn net.Conn, ours ChainInfo, maxMessageSize uint32) (ChainInfo, error) {
	return negotiateIncoming(conn, ours, maxMessageSize)
}
