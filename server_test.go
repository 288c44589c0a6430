package main

import "time"

// newTestConfig returns a minimal, defaulted Config suitable for wiring a
// Server in tests, without reading a file off disk.
func newTestConfig() *Config {
	cfg := &Config{
		Name:       "test.example",
		Network:    "TestNet",
		ListenHost: "127.0.0.1",
		ListenPort: "0",
		MOTD:       "hello",
	}
	applyConfigDefaults(cfg)
	return cfg
}

// newTestServer returns a Server wired the way NewServer always wires one,
// with an in-memory data store and bcrypt hashing enabled, but with no
// listener opened.
func newTestServer() *Server {
	return NewServer(newTestConfig(), NewMemoryDataStore(), NewBcryptHashing(4))
}

// newTestSession returns a registered-or-not Session attached to srv, with a
// zero-value Conn: enough to exercise every method that only touches
// writeChan, never the real network transport.
func newTestSession(srv *Server, id uint64) *Session {
	s := NewSession(srv, id, Conn{})
	s.Hostname = "host.example"
	return s
}

// drain reads exactly n queued outbound messages from s, failing the test
// (via the returned slice being short) if fewer arrived within the deadline.
func drain(s *Session, n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		select {
		case m := <-s.writeChan:
			line, _ := m.Encode()
			out = append(out, line)
		case <-time.After(time.Second):
			return out
		}
	}
	return out
}
