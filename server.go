package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Event is the shape of everything that crosses from a goroutine outside the
// reactor (reader, writer, timer, rDNS) back onto the reactor channel.
// Grounded on ircd.go's three separate channels (newClientChan,
// messageServerChan, deadClientChan) plus its alarm ticker, collapsed into
// one tagged channel per SPEC_FULL.md section 5's single reactor channel.
type Event struct {
	Kind     string
	Session  *Session
	Conn     Conn
	Line     string
	Err      error
	Hostname string
	OK       bool
}

const (
	eventAccept      = "accept"
	eventLine        = "line"
	eventDead        = "dead"
	eventPingFire    = "ping_fire"
	eventPingTimeout = "ping_timeout"
	eventDNSResult   = "dns_result"
)

// Server is the process-wide context described in SPEC_FULL.md section 4.6
// and the "Global server context" design note: an explicit handle passed
// into every component at construction, rather than package-level mutable
// globals. Grounded on ircd.go's Server struct, generalized from a flat
// client/nick/channel map trio into the Registry/ChannelManager/EventBus
// split this system's larger surface needs.
type Server struct {
	Config *Config

	Registry *Registry
	Channels *ChannelManager
	Bus      *EventBus
	Router   *Router
	Roles    *RoleTable
	Store    DataStore
	Hashing  HashingProvider

	SASLMechanisms []string

	Events chan Event

	listeners    []net.Listener
	nextID       uint64
	shuttingDown bool

	startTS   time.Time
	currentTS time.Time

	WG  sync.WaitGroup
	log logger
}

// NewServer constructs a Server from a loaded Config. It wires every
// component (registry, router, channel manager, role table, data store,
// hashing provider) and registers protocol/core handlers in a fixed order,
// matching the "register(bus) called explicitly" design note rather than
// relying on import-time side effects.
func NewServer(cfg *Config, store DataStore, hashing HashingProvider) *Server {
	srv := &Server{
		Config:   cfg,
		Registry: NewRegistry(0, 0),
		Channels: NewChannelManager(),
		Bus:      newEventBus(),
		Roles:    NewRoleTable(cfg.Roles),
		Store:    store,
		Hashing:  hashing,
		Events:   make(chan Event, 1024),
		startTS:  time.Now(),
		log:      newLogger("server"),
	}
	srv.currentTS = srv.startTS
	srv.Router = NewRouter(srv)

	srv.SASLMechanisms = nil
	if hashing.Enabled() {
		srv.SASLMechanisms = append(srv.SASLMechanisms, "PLAIN")
	} else {
		srv.log.Printf("SASL PLAIN disabled because hashing is not available")
	}

	registerCapHandlers(srv.Bus)
	registerSASLHandlers(srv.Bus)
	registerCoreHandlers(srv.Bus)

	return srv
}

// Now returns the server's cached wall-clock tick, refreshed once a second
// by the ticker case in Run, per section 4.6.
func (srv *Server) Now() time.Time {
	return srv.currentTS
}

// Listen opens a TCP (optionally TLS) listener on the configured address and
// starts accepting connections in its own goroutine.
func (srv *Server) Listen() error {
	addr := fmt.Sprintf("%s:%s", srv.Config.ListenHost, srv.Config.ListenPort)

	var ln net.Listener
	var err error

	if srv.Config.TLS != nil {
		cert, cerr := tls.LoadX509KeyPair(srv.Config.TLS.CertFile, srv.Config.TLS.KeyFile)
		if cerr != nil {
			return errors.Wrap(cerr, "unable to load TLS certificate")
		}
		ln, err = tls.Listen("tcp", addr, &tls.Config{Certificates: []tls.Certificate{cert}})
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return errors.Wrap(err, "unable to listen")
	}

	srv.listeners = append(srv.listeners, ln)

	srv.WG.Add(1)
	go srv.acceptLoop(ln)

	return nil
}

func (srv *Server) acceptLoop(ln net.Listener) {
	defer srv.WG.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if srv.shuttingDown {
				return
			}
			srv.log.Printf("accept error: %s", err)
			continue
		}

		if srv.shuttingDown {
			_ = conn.Close()
			continue
		}

		c, err := NewConn(conn, srv.Config.Clients.PingTimeout)
		if err != nil {
			srv.log.Printf("unable to wrap connection: %s", err)
			_ = conn.Close()
			continue
		}

		srv.Events <- Event{Kind: eventAccept, Conn: c}
	}
}

// Run is the reactor: the single goroutine that owns all session state, the
// registries, and the channel table. Grounded on ircd.go's start() select
// loop, generalized from three hand-rolled channels to one tagged Event
// channel.
func (srv *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			srv.shutdown()
			return

		case <-ticker.C:
			srv.currentTS = time.Now()

		case ev := <-srv.Events:
			srv.handleEvent(ev)
		}
	}
}

func (srv *Server) handleEvent(ev Event) {
	switch ev.Kind {
	case eventAccept:
		srv.onAccept(ev.Conn)
	case eventLine:
		if ev.Session.Connected {
			ev.Session.MessageReceived(ev.Line)
		}
	case eventDead:
		if ev.Session.Connected {
			reason := "Connection closed"
			if ev.Err != nil {
				reason = fmt.Sprintf("Connection error: %s", ev.Err)
			}
			ev.Session.Quit(reason)
		}
	case eventPingFire:
		ev.Session.firePing()
	case eventPingTimeout:
		ev.Session.firePingTimeout()
	case eventDNSResult:
		srv.applyDNSResult(ev.Session, ev.Hostname, ev.OK)
	}
}

func (srv *Server) onAccept(c Conn) bool {
	if srv.shuttingDown {
		_ = c.Close()
		return false
	}

	id := srv.nextID
	srv.nextID++

	s := NewSession(srv, id, c)
	s.Hostname = c.IP.String()

	srv.log.Printf("new connection: %s (%s)", s, ipForLog(c.IP))

	srv.WG.Add(2)
	go s.readLoop()
	go s.writeLoop()

	srv.WG.Add(1)
	go srv.resolveDNS(s)

	s.resetTimers()

	return true
}

// resolveDNS runs the reverse-DNS round trip (a suspension point, per
// section 5) on its own goroutine and posts the outcome back onto the
// reactor, releasing the DNS registration lock exactly once regardless of
// outcome.
func (srv *Server) resolveDNS(s *Session) {
	defer srv.WG.Done()

	ctx, cancel := context.WithTimeout(context.Background(), dnsResolveTimeout)
	defer cancel()

	name, ok := resolveHostname(ctx, nil, s.Conn.IP)

	srv.Events <- Event{Kind: eventDNSResult, Session: s, Hostname: name, OK: ok}
}

func (srv *Server) applyDNSResult(s *Session, hostname string, ok bool) {
	if !s.Connected {
		return
	}
	if ok {
		s.Hostname = hostname
	}
	s.ReleaseRegistrationLock(lockDNS)
}

func (srv *Server) notifyLine(s *Session, line string) {
	srv.Events <- Event{Kind: eventLine, Session: s, Line: line}
}

func (srv *Server) notifyDead(s *Session, err error) {
	srv.Events <- Event{Kind: eventDead, Session: s, Err: err}
}

func (srv *Server) notifyPingFire(s *Session) {
	srv.Events <- Event{Kind: eventPingFire, Session: s}
}

func (srv *Server) notifyPingTimeout(s *Session) {
	srv.Events <- Event{Kind: eventPingTimeout, Session: s}
}

// shutdown implements section 4.6: mark shutting down, notice and exit a
// snapshot of live sessions, close listeners.
func (srv *Server) shutdown() {
	srv.shuttingDown = true

	for _, ln := range srv.listeners {
		_ = ln.Close()
	}

	snapshot := srv.Registry.snapshot()
	for _, s := range snapshot {
		s.DumpNotice("Server shutting down")
		s.Exit()
	}
}
