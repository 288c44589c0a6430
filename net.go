package main

import (
	"bufio"
	"crypto/tls"
	"net"
	"time"

	"github.com/horgh/mossd/ircmsg"
	"github.com/pkg/errors"
)

// Conn is a connection to a client. Adapted from the donor's net.go: kept the
// deadline-based Read/Write shape, generalized to also carry the tls
// attribute the Session data model (SPEC_FULL.md section 3) needs.
type Conn struct {
	conn   net.Conn
	rw     *bufio.ReadWriter
	ioWait time.Duration

	IP  net.IP
	TLS bool
}

// NewConn wraps conn, resolving its peer IP up front the way the donor always
// did (log.Fatalf there; we return an error instead since this is no longer
// the only code path that can construct a Conn -- tests construct them too).
func NewConn(conn net.Conn, ioWait time.Duration) (Conn, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", conn.RemoteAddr().String())
	if err != nil {
		return Conn{}, errors.Wrap(err, "unable to resolve TCP address")
	}

	_, isTLS := conn.(*tls.Conn)

	return Conn{
		conn:   conn,
		rw:     bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		ioWait: ioWait,
		IP:     tcpAddr.IP,
		TLS:    isTLS,
	}, nil
}

// Close closes the underlying connection.
func (c Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the remote network address.
func (c Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Read reads a line from the connection.
func (c Conn) Read() (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.ioWait)); err != nil {
		return "", errors.Wrap(err, "unable to set read deadline")
	}

	line, err := c.rw.ReadString('\n')
	if err != nil {
		return "", err
	}

	return line, nil
}

// Write writes a string to the connection.
func (c Conn) Write(s string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.ioWait)); err != nil {
		return errors.Wrap(err, "unable to set write deadline")
	}

	sz, err := c.rw.WriteString(s)
	if err != nil {
		return err
	}

	if sz != len(s) {
		return errors.New("short write")
	}

	return c.rw.Flush()
}

// WriteMessage encodes and writes an IRC message to the connection.
func (c Conn) WriteMessage(m ircmsg.Message) error {
	buf, err := m.Encode()
	if err != nil && err != ircmsg.ErrTruncated {
		return errors.Wrap(err, "unable to encode message")
	}

	return c.Write(buf)
}

// ipForLog returns the IP formatted for log lines and rDNS forward-compare,
// prefixing a bare ':' (IPv6 beginning with ':') with '0' per SPEC_FULL.md
// section 8's boundary behavior.
func ipForLog(ip net.IP) string {
	s := ip.String()
	if len(s) > 0 && s[0] == ':' {
		return "0" + s
	}
	return s
}
