// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/consult/lib/clock"
)

// DataChannelConn is a detached pion data channel presented as a
// net.Conn. SCTP reassembles messages, so the channel reads like a
// stream.
//
// The stream has no native deadlines. An expired deadline closes the
// stream, which unblocks pending I/O; the conn is unusable afterwards
// and Read and Write return os.ErrDeadlineExceeded.
type DataChannelConn struct {
	stream    io.ReadWriteCloser
	localAddr dataChannelAddr
	peerAddr  dataChannelAddr
	clock     clock.Clock

	mu         sync.Mutex
	readTimer  *clock.Timer
	writeTimer *clock.Timer
	expired    bool
}

var _ net.Conn = (*DataChannelConn)(nil)

// NewDataChannelConn wraps stream. The labels name the two endpoints
// in LocalAddr and RemoteAddr.
func NewDataChannelConn(stream io.ReadWriteCloser, localLabel, peerLabel string) *DataChannelConn {
	return newDataChannelConn(stream, localLabel, peerLabel, clock.Real())
}

func newDataChannelConn(stream io.ReadWriteCloser, localLabel, peerLabel string, clk clock.Clock) *DataChannelConn {
	return &DataChannelConn{
		stream:    stream,
		localAddr: dataChannelAddr(localLabel),
		peerAddr:  dataChannelAddr(peerLabel),
		clock:     clk,
	}
}

func (c *DataChannelConn) Read(buffer []byte) (int, error) {
	n, err := c.stream.Read(buffer)
	return n, c.translate(err)
}

func (c *DataChannelConn) Write(buffer []byte) (int, error) {
	n, err := c.stream.Write(buffer)
	return n, c.translate(err)
}

func (c *DataChannelConn) translate(err error) error {
	if err == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired {
		return os.ErrDeadlineExceeded
	}
	return err
}

func (c *DataChannelConn) Close() error {
	c.mu.Lock()
	stopTimer(&c.readTimer)
	stopTimer(&c.writeTimer)
	c.mu.Unlock()
	return c.stream.Close()
}

func (c *DataChannelConn) LocalAddr() net.Addr  { return c.localAddr }
func (c *DataChannelConn) RemoteAddr() net.Addr { return c.peerAddr }

// SetDeadline sets both deadlines. The zero time clears them.
func (c *DataChannelConn) SetDeadline(deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armLocked(&c.readTimer, deadline)
	c.armLocked(&c.writeTimer, deadline)
	return nil
}

func (c *DataChannelConn) SetReadDeadline(deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armLocked(&c.readTimer, deadline)
	return nil
}

func (c *DataChannelConn) SetWriteDeadline(deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armLocked(&c.writeTimer, deadline)
	return nil
}

func (c *DataChannelConn) armLocked(slot **clock.Timer, deadline time.Time) {
	stopTimer(slot)
	if deadline.IsZero() || c.expired {
		return
	}
	remaining := deadline.Sub(c.clock.Now())
	if remaining <= 0 {
		c.expireLocked()
		return
	}
	*slot = c.clock.AfterFunc(remaining, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.expireLocked()
	})
}

func (c *DataChannelConn) expireLocked() {
	if c.expired {
		return
	}
	c.expired = true
	c.stream.Close()
}

func stopTimer(slot **clock.Timer) {
	if *slot != nil {
		(*slot).Stop()
		*slot = nil
	}
}

// dataChannelAddr is the synthetic address of a data channel endpoint.
type dataChannelAddr string

func (a dataChannelAddr) Network() string { return "webrtc" }
func (a dataChannelAddr) String() string  { return string(a) }
