package mesh

import (
	"net"
	"sort"
	"strconv"
	"strings"

	"pitchcam/internal/config"
)

// Peer is one sibling node in the static topology.
type Peer struct {
	Role string
	URL  string
}

// PeerURL turns a topology address into a base URL. Bare hosts get the mesh
// port; host:port and full URLs are used as given.
func PeerURL(address string, port int) string {
	address = strings.TrimRight(strings.TrimSpace(address), "/")
	if strings.Contains(address, "://") {
		return address
	}
	if _, _, err := net.SplitHostPort(address); err == nil {
		return "http://" + address
	}
	return "http://" + net.JoinHostPort(address, strconv.Itoa(port))
}

// Peers returns the topology minus self, sorted by role.
func Peers(mesh config.Mesh, self string) []Peer {
	peers := make([]Peer, 0, len(mesh.Topology))
	for role, address := range mesh.Topology {
		if role == self {
			continue
		}
		peers = append(peers, Peer{Role: role, URL: PeerURL(address, mesh.Port)})
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Role < peers[j].Role })
	return peers
}
