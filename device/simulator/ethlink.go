package simulator

import (
	"fmt"
	"net"
	"time"

	"github.com/tenstorrent/tt-umd-sub002/ttumderr"
)

// LinkEndpoint names one side of a simulated inter-chip Ethernet
// connection: a (chip, channel) pair, mirroring the original's
// EthCoord-derived connection key.
type LinkEndpoint struct {
	Chip    int
	Channel int
}

// linkSocketPath deterministically derives the unix socket both
// endpoints of a link use, from (min_chip, min_channel, max_chip,
// max_channel) so either side can compute the identical path
// independently and agree on which one listens — grounded on
// original_source/device/simulation/eth_connection.cpp's EthConnection,
// whose address is likewise derived from the pair of endpoints it joins
// rather than assigned out of band.
func linkSocketPath(dir string, a, b LinkEndpoint) string {
	lo, hi := a, b
	if hi.Chip < lo.Chip || (hi.Chip == lo.Chip && hi.Channel < lo.Channel) {
		lo, hi = hi, lo
	}
	name := fmt.Sprintf("ttsim-eth-%d-%d-%d-%d.sock", lo.Chip, lo.Channel, hi.Chip, hi.Channel)
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// isServerSide reports whether local is the listening side of the link
// it shares with remote. Both endpoints evaluate this independently and
// always agree, since it depends only on the two endpoints' values, not
// on which one calls it first.
func isServerSide(local, remote LinkEndpoint) bool {
	if local.Chip != remote.Chip {
		return local.Chip < remote.Chip
	}
	return local.Channel < remote.Channel
}

// EthLink is one simulated point-to-point Ethernet connection between
// two chip/channel endpoints in a simulated cluster, carried over a unix
// domain socket. One side listens and accepts, the other dials and
// retries until accepted, matching EthConnection's server/client
// connect() loop without needing raw non-blocking poll: net.Listener and
// net.Dial already give a Go program the equivalent retry-until-ready
// shape.
type EthLink struct {
	local, remote LinkEndpoint
	path          string
	isServer      bool

	listener net.Listener
	conn     net.Conn
}

// NewEthLink prepares (but does not yet connect) the link between local
// and remote, rooted at dir (a directory both simulator processes share,
// e.g. a run-specific temp directory).
func NewEthLink(dir string, local, remote LinkEndpoint) *EthLink {
	return &EthLink{
		local:    local,
		remote:   remote,
		path:     linkSocketPath(dir, local, remote),
		isServer: isServerSide(local, remote),
	}
}

// Connect attempts to bring the link up, retrying at interval until
// timeout elapses. The server side listens and accepts once; the client
// side dials repeatedly since the server's socket file may not exist yet
// when the client starts first.
func (l *EthLink) Connect(interval, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := l.tryConnect()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ttumderr.New(ttumderr.KindTimeout, "simulator.EthLink.Connect", "link did not come up before deadline")
		}
		time.Sleep(interval)
	}
}

func (l *EthLink) tryConnect() (bool, error) {
	if l.conn != nil {
		return true, nil
	}
	if l.isServer {
		if l.listener == nil {
			lis, err := net.Listen("unix", l.path)
			if err != nil {
				return false, ttumderr.Wrap(ttumderr.KindTransport, "simulator.EthLink.tryConnect", err)
			}
			l.listener = lis
		}
		l.listener.(*net.UnixListener).SetDeadline(time.Now().Add(time.Millisecond))
		conn, err := l.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return false, nil
			}
			return false, ttumderr.Wrap(ttumderr.KindTransport, "simulator.EthLink.tryConnect", err)
		}
		l.conn = conn
		return true, nil
	}

	conn, err := net.DialTimeout("unix", l.path, 50*time.Millisecond)
	if err != nil {
		return false, nil // server side not listening yet; caller retries
	}
	l.conn = conn
	return true, nil
}

// IsConnected reports whether the link has an established connection.
func (l *EthLink) IsConnected() bool {
	return l.conn != nil
}

// Write sends a command frame across the link.
func (l *EthLink) Write(data []byte) (int, error) {
	if l.conn == nil {
		return 0, ttumderr.New(ttumderr.KindTransport, "simulator.EthLink.Write", "link not connected")
	}
	return l.conn.Write(data)
}

// Read receives bytes from the link.
func (l *EthLink) Read(data []byte) (int, error) {
	if l.conn == nil {
		return 0, ttumderr.New(ttumderr.KindTransport, "simulator.EthLink.Read", "link not connected")
	}
	return l.conn.Read(data)
}

// Disconnect tears the link down, closing whichever of the connection
// and listener are open.
func (l *EthLink) Disconnect() error {
	var err error
	if l.conn != nil {
		err = l.conn.Close()
		l.conn = nil
	}
	if l.listener != nil {
		if lerr := l.listener.Close(); err == nil {
			err = lerr
		}
		l.listener = nil
	}
	return err
}
