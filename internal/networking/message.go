package networking

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// MaxMessageSize is the default ceiling on a single framed message,
// matching spec section 6's 22 MiB default. A listener may be configured
// with a different limit from config.Config.MaximumNetMessageSize.
const MaxMessageSize = 22 * 1024 * 1024

// WireMessage is the reactor's peer-to-peer message sum. Handshake is
// always the first message sent in each direction; ApplicationMessage
// carries opaque payloads for every component above the transport (gossip,
// consensus, deploy propagation, etc).
type WireMessage interface {
	isWireMessage()
}

// Handshake is the first framed message exchanged on every connection.
type Handshake struct {
	NetworkName     string
	PublicAddr      string
	ProtocolVersion [3]uint32
	ChainspecDigest *[32]byte
	Supports        [][32]byte
}

func (Handshake) isWireMessage() {}

// ApplicationMessage carries an opaque payload produced by a component
// above the transport layer.
type ApplicationMessage struct {
	Payload []byte
}

func (ApplicationMessage) isWireMessage() {}

func init() {
	gob.Register(Handshake{})
	gob.Register(ApplicationMessage{})
}

// WriteFrame serializes msg with gob, a self-describing binary codec, and
// writes it to w as a 4-byte big-endian length prefix followed by the
// payload. It returns an error without writing anything if the encoded
// payload exceeds maxSize.
func WriteFrame(w io.Writer, msg WireMessage, maxSize uint32) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&msg); err != nil {
		return fmt.Errorf("networking: failed to encode message: %w", err)
	}
	if uint32(buf.Len()) > maxSize {
		return fmt.Errorf("networking: encoded message of %d bytes exceeds maximum %d", buf.Len(), maxSize)
	}

	var lengthPrefix [4]byte
	binary.BigEndian.PutUint32(lengthPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lengthPrefix[:]); err != nil {
		return classifyIOErr(err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return classifyIOErr(err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r and decodes it. It
// returns a classified IoError on any I/O failure, and a plain error if
// the advertised length exceeds maxSize (a protocol violation, not an I/O
// failure).
func ReadFrame(r io.Reader, maxSize uint32) (WireMessage, error) {
	var lengthPrefix [4]byte
	if _, err := io.ReadFull(r, lengthPrefix[:]); err != nil {
		return nil, classifyIOErr(err)
	}
	n := binary.BigEndian.Uint32(lengthPrefix[:])
	if n > maxSize {
		return nil, fmt.Errorf("networking: incoming frame of %d bytes exceeds maximum %d", n, maxSize)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, classifyIOErr(err)
	}

	var msg WireMessage
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&msg); err != nil {
		return nil, fmt.Errorf("networking: failed to decode message: %w", err)
	}
	return msg, nil
}
