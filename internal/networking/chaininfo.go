package networking

// ChainInfo is the handshake payload each side advertises: enough to
// decide whether the two nodes can usefully talk to each other.
type ChainInfo struct {
	NetworkName     string
	PublicAddr      string
	ProtocolVersion [3]uint32
	ChainspecDigest *[32]byte
	Supports        map[[32]byte]struct{}
}

// ToHandshake renders this ChainInfo as the wire Handshake message.
func (c ChainInfo) ToHandshake() Handshake {
	supports := make([][32]byte, 0, len(c.Supports))
	for digest := range c.Supports {
		supports = append(supports, digest)
	}
	return Handshake{
		NetworkName:     c.NetworkName,
		PublicAddr:      c.PublicAddr,
		ProtocolVersion: c.ProtocolVersion,
		ChainspecDigest: c.ChainspecDigest,
		Supports:        supports,
	}
}

// ChainInfoFromHandshake reconstructs a ChainInfo from a received
// Handshake message, round-tripping exactly with ToHandshake up to map
// ordering.
func ChainInfoFromHandshake(h Handshake) ChainInfo {
	supports := make(map[[32]byte]struct{}, len(h.Supports))
	for _, digest := range h.Supports {
		supports[digest] = struct{}{}
	}
	return ChainInfo{
		NetworkName:     h.NetworkName,
		PublicAddr:      h.PublicAddr,
		ProtocolVersion: h.ProtocolVersion,
		ChainspecDigest: h.ChainspecDigest,
		Supports:        supports,
	}
}

// Compatible implements the chainspec compatibility predicate of spec
// section 4.5: two peers are compatible if their digests match exactly, if
// either side lists the other's digest among its supported ancestors, or
// if the peer omits a chainspec digest altogether (a pre-chainspec-exchange
// peer, tolerated).
func Compatible(ours, theirs ChainInfo) bool {
	if theirs.ChainspecDigest == nil {
		return true
	}
	if ours.ChainspecDigest != nil && *ours.ChainspecDigest == *theirs.ChainspecDigest {
		return true
	}
	if ours.ChainspecDigest != nil {
		if _, ok := theirs.Supports[*ours.ChainspecDigest]; ok {
			return true
		}
	}
	if _, ok := ours.Supports[*theirs.ChainspecDigest]; ok {
		return true
	}
	return false
}
