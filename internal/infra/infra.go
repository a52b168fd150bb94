// Package infra manages the container infrastructure of a compatibility run
// on top of Podman: the long-lived identity server shared by every release
// iteration, and the per-release upstream/downstream proxy pair built from
// the mashup image.
package infra

// Execer runs a command inside a named running container.
type Execer interface {
	Exec(container string, cmd []string) (string, error)
}

// Container and network names. Fixed names let the probes and the identity
// client address the environment without plumbing per-release state.
const (
	NetworkName = "envoy-compat"

	ServerContainer     = "spire-server"
	UpstreamContainer   = "upstream-proxy"
	DownstreamContainer = "downstream-proxy"

	// MashupImage is the per-release test image combining the identity agent
	// with the Envoy release under test.
	MashupImage = "localhost/envoy-agent-mashup"
)

// Downstream ingress ports and upstream sink files, one per transport mode.
const (
	MTLSIngressPort = 8001
	TLSIngressPort  = 8002

	MTLSSinkPath = "/tmp/mtls-sink.log"
	TLSSinkPath  = "/tmp/tls-sink.log"
)
