// Package version holds the network-handshake identity fields this node
// exchanges with every peer (spec's SUPPLEMENTED FEATURES: version and
// network fields on peer announcement).
package version

// Semver is the node's own protocol version, compared against a peer's
// reported version and the configured minimum host version.
const Semver = "1.0.0"

// DefaultNetwork is the network name used when no --network flag is
// supplied.
const DefaultNetwork = "mainnet"

// Info is the identity payload served from the "/name" endpoint and
// exchanged on every peer ping.
type Info struct {
	Version string `json:"version"`
	Network string `json:"network"`
	Height  uint64 `json:"height"`
}
