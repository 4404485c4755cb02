package reactorcore

import "github.com/cuemby/ridgeback/internal/queue"

// QueueKind is the closed enumeration of event classes scheduled by the
// reactor, per spec.md section 3.
type QueueKind string

const (
	// QueueNetworkIncoming carries messages freshly decoded off the wire and
	// newly-accepted connection outcomes.
	QueueNetworkIncoming QueueKind = "network_incoming"
	// QueueNetwork carries outgoing-connection lifecycle events (dropped
	// dials, reconnect attempts).
	QueueNetwork QueueKind = "network"
	// QueueRegular carries everything else: component-internal events,
	// routed requests, and announcements.
	QueueRegular QueueKind = "regular"
	// QueueAPI carries events originating from the API server component.
	QueueAPI QueueKind = "api"
	// QueueControl carries operator/control-plane events (shutdown,
	// diagnostics).
	QueueControl QueueKind = "control"
)

// DefaultWeights returns the scheduler weights this reactor core is
// authored with. WeightsFromConfig lets configuration override individual
// entries.
func DefaultWeights() []queue.Weight[QueueKind] {
	return []queue.Weight[QueueKind]{
		{Kind: QueueNetworkIncoming, Weight: 4},
		{Kind: QueueNetwork, Weight: 2},
		{Kind: QueueRegular, Weight: 3},
		{Kind: QueueAPI, Weight: 1},
		{Kind: QueueControl, Weight: 1},
	}
}

// WeightsFromConfig builds scheduler weights from a name->weight mapping
// loaded from configuration, falling back to DefaultWeights for any kind
// absent from the map.
func WeightsFromConfig(overrides map[string]int) []queue.Weight[QueueKind] {
	weights := DefaultWeights()
	for i, w := range weights {
		if v, ok := overrides[string(w.Kind)]; ok && v > 0 {
			weights[i].Weight = v
		}
	}
	return weights
}
