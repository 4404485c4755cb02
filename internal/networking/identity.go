// Package networking implements the TLS-authenticated peer-to-peer
// transport: self-signed node identities, handshake negotiation, framed
// message streaming, and the accept/dial loops that establish connections.
package networking

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"
)

// NodeId is the fingerprint of a peer's TLS certificate public key: a
// SHA-256 digest, persistent for the lifetime of the certificate.
type NodeId [sha256.Size]byte

// String renders the fingerprint as lowercase hex, short enough for log
// lines.
func (id NodeId) String() string {
	return hex.EncodeToString(id[:])
}

// nodeIDFromCertificate derives a NodeId by hashing the DER-encoded public
// key carried in cert. Hostname verification plays no part in identity:
// the fingerprint alone is the peer's name.
func nodeIDFromCertificate(cert *x509.Certificate) (NodeId, error) {
	pubDER, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return NodeId{}, fmt.Errorf("networking: failed to marshal peer public key: %w", err)
	}
	return sha256.Sum256(pubDER), nil
}

// Identity is a node's self-signed TLS certificate and private key,
// together with the NodeId it derives.
type Identity struct {
	NodeId  NodeId
	TLSCert tls.Certificate
}

const selfSignedCertValidity = 10 * 365 * 24 * time.Hour

// GenerateIdentity creates a fresh self-signed identity. Unlike a CA-issued
// certificate, this node is its own root: peers do not verify a chain, and
// a peer's identity is simply the fingerprint of whatever certificate it
// presents. No expected fingerprint is checked.
func GenerateIdentity() (*Identity, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("networking: failed to generate identity key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("networking: failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      pkix.Name{CommonName: "ridgeback-node"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(selfSignedCertValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("networking: failed to create self-signed certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("networking: failed to parse generated certificate: %w", err)
	}

	nodeID, err := nodeIDFromCertificate(cert)
	if err != nil {
		return nil, err
	}

	return &Identity{
		NodeId: nodeID,
		TLSCert: tls.Certificate{
			Certificate: [][]byte{certDER},
			PrivateKey:  key,
			Leaf:        cert,
		},
	}, nil
}

// LoadOrCreateIdentity loads a PEM-encoded certificate and key from path,
// generating and persisting a fresh identity if no file exists there. An
// empty path always generates an ephemeral identity, used by tests.
func LoadOrCreateIdentity(path string) (*Identity, error) {
	if path == "" {
		return GenerateIdentity()
	}

	if _, err := os.Stat(path); err == nil {
		return loadIdentity(path)
	}

	identity, err := GenerateIdentity()
	if err != nil {
		return nil, err
	}
	if err := saveIdentity(path, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

func loadIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("networking: failed to read secret key file: %w", err)
	}

	certBlock, rest := pem.Decode(data)
	if certBlock == nil || certBlock.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("networking: secret key file missing CERTIFICATE block")
	}
	keyBlock, _ := pem.Decode(rest)
	if keyBlock == nil {
		return nil, fmt.Errorf("networking: secret key file missing private key block")
	}

	key, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("networking: failed to parse private key: %w", err)
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("networking: failed to parse certificate: %w", err)
	}
	nodeID, err := nodeIDFromCertificate(cert)
	if err != nil {
		return nil, err
	}

	return &Identity{
		NodeId: nodeID,
		TLSCert: tls.Certificate{
			Certificate: [][]byte{certBlock.Bytes},
			PrivateKey:  key,
			Leaf:        cert,
		},
	}, nil
}

func saveIdentity(path string, identity *Identity) error {
	keyDER, err := x509.MarshalECPrivateKey(identity.TLSCert.PrivateKey.(*ecdsa.PrivateKey))
	if err != nil {
		return fmt.Errorf("networking: failed to marshal private key: %w", err)
	}

	out := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: identity.TLSCert.Certificate[0]})
	out = append(out, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})...)

	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("networking: failed to write secret key file: %w", err)
	}
	return nil
}

// TLSConfig builds the mutual-auth, hostname-verification-disabled TLS
// configuration used for both the listener and dialer sides. verifyPeer is
// invoked with the peer's leaf certificate once the handshake completes;
// returning an error fails the connection.
func (id *Identity) TLSConfig(verifyPeer func(*x509.Certificate) error) *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{id.TLSCert},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true, // identity is the cert fingerprint, not the hostname
		MinVersion:         tls.VersionTLS12,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return fmt.Errorf("networking: peer presented no certificate")
			}
			cert, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return fmt.Errorf("networking: failed to parse peer certificate: %w", err)
			}
			if verifyPeer != nil {
				return verifyPeer(cert)
			}
			return nil
		},
	}
}
