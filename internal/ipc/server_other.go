//go:build !linux

package ipc

import "net"

// verifyPeerIsCurrentUser relies on socket file permissions where peer
// credentials are unavailable; the socket is created mode 0600.
func verifyPeerIsCurrentUser(net.Conn) (bool, error) {
	return true, nil
}
