package networking

import (
	"bytes"
	"crypto/sha256"
	"crypto/tls"
	"fmt"
	"net"
)

// ConnectionErrorKind enumerates the ways handle_incoming can fail before
// a connection is established, per spec section 4.5/7.
type ConnectionErrorKind int

const (
	ErrAcceptorCreation ConnectionErrorKind = iota
	ErrTlsHandshake
	ErrNoClientCertificate
	ErrPeerCertificateInvalid
	ErrHandshakeSend
	ErrHandshakeRecv
	ErrWrongNetwork
	ErrDidNotSendHandshake
)

func (k ConnectionErrorKind) String() string {
	switch k {
	case ErrAcceptorCreation:
		return "acceptor_creation"
	case ErrTlsHandshake:
		return "tls_handshake"
	case ErrNoClientCertificate:
		return "no_client_certificate"
	case ErrPeerCertificateInvalid:
		return "peer_certificate_invalid"
	case ErrHandshakeSend:
		return "handshake_send"
	case ErrHandshakeRecv:
		return "handshake_recv"
	case ErrWrongNetwork:
		return "wrong_network"
	case ErrDidNotSendHandshake:
		return "did_not_send_handshake"
	default:
		return "unknown"
	}
}

// ConnectionError reports why a connection attempt did not establish.
type ConnectionError struct {
	Kind ConnectionErrorKind
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("networking: connection error (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("networking: connection error (%s)", e.Kind)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func connErr(kind ConnectionErrorKind, err error) *ConnectionError {
	return &ConnectionError{Kind: kind, Err: err}
}

// Role distinguishes which side of a connection this node played.
type Role int

const (
	RoleDialer Role = iota
	RoleListener
)

// ConnectionId identifies a connection by hashing the TLS session's
// exported keying material together with both NodeIds, so the two sides
// agree on the same id without exchanging one explicitly.
type ConnectionId [sha256.Size]byte

func newConnectionID(state tls.ConnectionState, local, remote NodeId) (ConnectionId, error) {
	keyingMaterial, err := state.ExportKeyingMaterial("ridgeback-connection-id", nil, 32)
	if err != nil {
		return ConnectionId{}, fmt.Errorf("networking: failed to export keying material: %w", err)
	}
	// Hash the two NodeIds in a fixed order so both ends derive the same id.
	first, second := local, remote
	if bytes.Compare(first[:], second[:]) > 0 {
		first, second = second, first
	}
	h := sha256.New()
	h.Write(keyingMaterial)
	h.Write(first[:])
	h.Write(second[:])
	var id ConnectionId
	copy(id[:], h.Sum(nil))
	return id, nil
}

// Connection is an established, authenticated peer session: a framed
// transport plus the identities and role of both ends.
type Connection struct {
	ID         ConnectionId
	LocalID    NodeId
	RemoteID   NodeId
	Role       Role
	PeerAddr   net.Addr
	PublicAddr string
	conn       net.Conn
}

// IncomingOutcomeKind is the tag of an IncomingConnection result.
type IncomingOutcomeKind int

const (
	IncomingFailedEarly IncomingOutcomeKind = iota
	IncomingFailed
	IncomingLoopback
	IncomingEstablished
)

// IncomingConnection is the outcome of one handle_incoming invocation,
// scheduled as an event by the accept loop.
type IncomingConnection struct {
	Kind     IncomingOutcomeKind
	PeerAddr net.Addr
	Err      error       // set for FailedEarly/Failed
	PeerID   *NodeId     // set for Loopback/Established
	Conn     *Connection // set for Established
}
