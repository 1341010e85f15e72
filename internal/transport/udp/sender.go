// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	applog "soukou/internal/log"
)

// ErrSenderClosed is returned by Send after Close.
var ErrSenderClosed = errors.New("UDP sender is closed")

// UDPSender writes datagrams to one fixed peer.
type UDPSender struct {
	mu   sync.Mutex
	conn *net.UDPConn // Nil once closed.
	sent uint64
}

// NewUDPSender connects a socket to target ("host:port"). The local port is
// chosen by the kernel.
func NewUDPSender(target string) (*UDPSender, error) {
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", target, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", target, err)
	}
	applog.Infof("UDPSender: Sending frames to %s", conn.RemoteAddr())
	return &UDPSender{conn: conn}, nil
}

// Send writes packet as a single datagram.
func (s *UDPSender) Send(packet []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrSenderClosed
	}
	if _, err := s.conn.Write(packet); err != nil {
		return fmt.Errorf("failed to send UDP packet to %s: %w", s.conn.RemoteAddr(), err)
	}
	s.sent++
	return nil
}

// Sent returns the number of datagrams written so far.
func (s *UDPSender) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Close releases the socket. Further calls do nothing.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	conn := s.conn
	s.conn = nil
	applog.Debugf("UDPSender: Closing after %d packets to %s", s.sent, conn.RemoteAddr())
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}
