package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/horgh/mossd/ircmsg"
)

// registration lock tokens.
const (
	lockNick = "NICK"
	lockUser = "USER"
	lockDNS  = "DNS"
	lockCAP  = "CAP"
)

// legacyModeTable projects the boolean Props map onto the classic mode
// letters clients still expect from MODE/RPL_UMODEIS. Grounded on
// local_user.go's userModeCommand, generalized from its single hardcoded
// 'o' case into a table so SetLegacyModes/LegacyModes can walk it both ways.
var legacyModeTable = []struct {
	Prop   string
	Letter byte
}{
	{"invisible", 'i'},
	{"wallops", 'w'},
	{"operator", 'o'},
}

// Membership links a Session to a Channel it has joined. Defined here
// because Session.Channels holds these; Channel itself lives in channel.go.
type Membership struct {
	Channel *Channel
	Modes   map[byte]struct{}
}

// Session is the per-connection object described in SPEC_FULL.md section 3.
// Grounded primarily on local_client.go's LocalClient (buffering,
// maybeQueueMessage, readLoop/writeLoop, registration-by-flags) and
// local_user.go's LocalUser (ping/idle timers, quit/exit, nickUhost,
// messageFromServer's numeric-nick-prepend), generalized from two
// hand-grown boolean flags (GotPASS/GotCAPAB/GotSERVER-style) into a real
// registration-lock set, and from a fixed TS6-linking shape into the
// CAP/SASL-aware shape this system needs.
type Session struct {
	srv *Server

	Conn Conn

	ID uint64

	// identity
	Nickname   string
	Username   string
	RealName   string
	Hostname   string
	RealAddr   string
	Account    *string
	ServerName string
	RoleName   *string

	// transport
	TLS       bool
	Connected bool

	// protocol
	Caps            map[string]string
	CapVersion      int
	Props           map[string]bool
	Metadata        map[string]string
	UserSetMetadata map[string]struct{}
	Monitoring      map[string]struct{}

	// registration
	Registered       bool
	RegistrationLock map[string]struct{}
	RegistrationTS   time.Time

	// buffering
	Recvq []ircmsg.Message

	// timing
	LastEventTS      time.Time
	PingCookie       *int64
	pingTimer        *time.Timer
	pingTimeoutTimer *time.Timer

	// membership
	Channels []*Membership

	// away
	AwayMessage string

	// SASL
	SASL *string

	// outbound delivery; fed by the reactor, drained by this session's own
	// writer goroutine, matching local_client.go's WriteChan pattern.
	writeChan         chan ircmsg.Message
	sendQueueExceeded bool
}

// NewSession allocates a Session for a freshly accepted connection. It does
// not start timers or register anything; the caller (server.go's onAccept,
// running on the reactor) does that.
func NewSession(srv *Server, id uint64, conn Conn) *Session {
	return &Session{
		srv:  srv,
		Conn: conn,
		ID:   id,

		Nickname:   "*",
		ServerName: srv.Config.Name,
		TLS:        conn.TLS,
		RealAddr:   conn.IP.String(),
		Connected:  true,

		Caps:            map[string]string{},
		CapVersion:      301,
		Props:           map[string]bool{},
		Metadata:        map[string]string{},
		UserSetMetadata: map[string]struct{}{},
		Monitoring:      map[string]struct{}{},

		RegistrationLock: map[string]struct{}{
			lockNick: {},
			lockUser: {},
			lockDNS:  {},
		},

		writeChan: make(chan ircmsg.Message, 512),
	}
}

func (s *Session) String() string {
	return fmt.Sprintf("%d %s", s.ID, s.Conn.RemoteAddr())
}

// ---- outbound queueing ----

// maybeQueueMessage is the non-blocking send pattern grounded on
// local_client.go's method of the same name: if the writer can't keep up we
// flag it rather than block the reactor.
func (s *Session) maybeQueueMessage(m ircmsg.Message) {
	if s.sendQueueExceeded {
		return
	}

	select {
	case s.writeChan <- m:
	default:
		s.sendQueueExceeded = true
	}
}

// writeLoop drains writeChan to the transport. One per session, grounded on
// local_client.go's writeLoop.
func (s *Session) writeLoop() {
	defer s.srv.WG.Done()

	for m := range s.writeChan {
		if err := s.Conn.WriteMessage(m); err != nil {
			s.srv.log.Printf("session %s: write error: %s", s, err)
			s.srv.notifyDead(s, err)
			break
		}
	}

	if err := s.Conn.Close(); err != nil {
		s.srv.log.Printf("session %s: close error: %s", s, err)
	}
}

// readLoop endlessly reads lines from the transport and posts them to the
// reactor. Grounded on local_client.go's readLoop, generalized to post a raw
// line instead of a parsed message since parsing now happens on the reactor
// inside MessageReceived to keep recvq mutation single-owner.
func (s *Session) readLoop() {
	defer s.srv.WG.Done()

	for {
		line, err := s.Conn.Read()
		if err != nil {
			s.srv.notifyDead(s, err)
			break
		}
		s.srv.notifyLine(s, line)
	}
}

// ---- dump* outbound API ----

// DumpMessage clones m, runs outbound postprocessing, truncates, and writes
// it. Every other Dump* method funnels through this one, per SPEC_FULL.md
// section 4.3.
func (s *Session) DumpMessage(m ircmsg.Message) {
	clone := m.Clone()

	s.srv.Bus.DispatchCore("outbound message postprocess", CoreEvent{
		"session": s,
		"message": &clone,
	})

	if _, err := clone.Encode(); err != nil && err != ircmsg.ErrTruncated {
		s.srv.log.Printf("session %s: unable to encode outbound message: %s", s, err)
		return
	} else if err == ircmsg.ErrTruncated {
		s.srv.log.Printf("session %s: outbound message truncated: %s", s, clone.Command)
	}

	s.maybeQueueMessage(clone)
}

// DumpVerb sends a verb/params message. Source defaults to the server name
// unless unprefixed is set (PING to a still-unregistered client, e.g.).
func (s *Session) DumpVerb(verb string, params []string, unprefixed bool) {
	m := ircmsg.Message{Command: verb, Params: params}
	if !unprefixed {
		m.Prefix = s.ServerName
	}
	s.DumpMessage(m)
}

// DumpNumeric sends a numeric reply, prepending the session's nickname as
// the target parameter unless addTarget is explicitly false.
func (s *Session) DumpNumeric(numeric string, params []string, addTarget ...bool) {
	target := true
	if len(addTarget) > 0 {
		target = addTarget[0]
	}

	if target {
		nick := s.Nickname
		if nick == "" {
			nick = "*"
		}
		full := make([]string, 0, len(params)+1)
		full = append(full, nick)
		full = append(full, params...)
		params = full
	}

	s.DumpMessage(ircmsg.Message{Prefix: s.ServerName, Command: numeric, Params: params})
}

// DumpNotice sends a NOTICE to this session from the server.
func (s *Session) DumpNotice(text string) {
	s.DumpVerb("NOTICE", []string{s.Nickname, text}, false)
}

// ---- registration lock ----

// PushRegistrationLock adds tokens to the lock set. No-op once registered,
// and adding an already-present token is a no-op (set semantics).
func (s *Session) PushRegistrationLock(tokens ...string) {
	if s.Registered {
		return
	}
	for _, t := range tokens {
		s.RegistrationLock[t] = struct{}{}
	}
}

// ReleaseRegistrationLock removes tokens from the lock set. If this empties
// the set, registration completes. No-op once registered, and releasing an
// absent token twice releases at most once.
func (s *Session) ReleaseRegistrationLock(tokens ...string) {
	if s.Registered {
		return
	}
	for _, t := range tokens {
		delete(s.RegistrationLock, t)
	}
	if len(s.RegistrationLock) == 0 {
		s.register()
	}
}

// register is the transition fired exactly once, the first time the
// registration lock empties. Grounded on local_client.go's registerUser,
// generalized to the CAP/ISUPPORT/role-aware welcome burst.
func (s *Session) register() {
	s.Registered = true
	s.RegistrationTS = s.srv.Now()
	s.srv.Registry.Register(s)

	hostmask := s.Hostmask()

	// Fires before the welcome burst so handlers observing registration (the
	// SASL "still in progress" abort, e.g.) run ahead of anything reaching the
	// wire; "client connect" fires after the burst/MOTD instead.
	s.srv.Bus.DispatchCore("client registered", CoreEvent{"session": s})

	// 001 RPL_WELCOME
	s.DumpNumeric(ircmsg.ReplyWelcome, []string{
		fmt.Sprintf("Welcome to the Internet Relay Network %s", hostmask),
	})
	// 002 RPL_YOURHOST
	s.DumpNumeric("002", []string{
		fmt.Sprintf("Your host is %s, running this software", s.ServerName),
	})
	// 003 RPL_CREATED
	s.DumpNumeric("003", []string{
		fmt.Sprintf("This server was started at %s", s.srv.startTS.Format(time.RFC1123)),
	})
	// 004 RPL_MYINFO
	s.DumpNumeric("004", []string{s.ServerName, "mossd-1.0", "io", "n"})

	s.dumpISupport()

	// MOTD as a re-dispatched side effect, per section 4.3/GLOSSARY "Side
	// effect".
	s.srv.Bus.DispatchProtocol(s, ircmsg.Message{Command: "MOTD"})

	s.srv.Bus.DispatchCore("client connect", CoreEvent{"session": s})
}

// dumpISupport builds the 005 burst, splitting into multiple lines of at
// most 13 tokens each, per SPEC_FULL.md section 6.
func (s *Session) dumpISupport() {
	cfg := s.srv.Config

	tokens := []string{
		fmt.Sprintf("NETWORK=%s", cfg.Network),
		fmt.Sprintf("METADATA=%d", cfg.Metadata.Limit),
		fmt.Sprintf("MONITOR=%d", cfg.Monitor.Limit),
		fmt.Sprintf("NICKLEN=%d", cfg.Limits.Nick),
		fmt.Sprintf("CHANNELLEN=%d", cfg.Limits.Channel),
		fmt.Sprintf("TOPICLEN=%d", cfg.Limits.Topic),
		fmt.Sprintf("LINELEN=%d", cfg.Limits.Line),
		fmt.Sprintf("USERLEN=%d", cfg.Limits.User),
	}
	for _, ext := range cfg.Extensions {
		tokens = append(tokens, strings.ToUpper(ext))
	}

	const perLine = 13
	for i := 0; i < len(tokens); i += perLine {
		end := i + perLine
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := append([]string{}, tokens[i:end]...)
		chunk = append(chunk, "are supported by this server")
		s.DumpNumeric("005", chunk)
	}
}

// ---- liveness ----

// updateIdle stamps last-event time and resets both timers. Called from
// every inbound message-observable event per section 4.3.
func (s *Session) updateIdle() {
	s.LastEventTS = s.srv.Now()
	s.resetTimers()
}

func (s *Session) resetTimers() {
	s.stopTimers()

	freq := s.srv.Config.Clients.PingFrequency
	timeout := s.srv.Config.Clients.PingTimeout

	s.pingTimer = time.AfterFunc(freq, func() {
		s.srv.notifyPingFire(s)
	})
	s.pingTimeoutTimer = time.AfterFunc(timeout, func() {
		s.srv.notifyPingTimeout(s)
	})
}

func (s *Session) stopTimers() {
	if s.pingTimer != nil {
		s.pingTimer.Stop()
	}
	if s.pingTimeoutTimer != nil {
		s.pingTimeoutTimer.Stop()
	}
}

// firePing is invoked by the reactor on a ping-timer event: stamp the
// cookie and send an unprefixed PING.
func (s *Session) firePing() {
	if !s.Connected {
		return
	}
	cookie := s.srv.Now().Unix()
	s.PingCookie = &cookie
	s.DumpVerb("PING", []string{fmt.Sprintf("%d", cookie)}, true)
}

// firePingTimeout is invoked by the reactor on a ping-timeout event.
func (s *Session) firePingTimeout() {
	if !s.Connected {
		return
	}
	s.Quit(fmt.Sprintf("Ping timeout: %d seconds", int(s.srv.Config.Clients.PingTimeout.Seconds())))
}

// clearPingCookie is called by the PONG handler.
func (s *Session) clearPingCookie() {
	s.PingCookie = nil
	s.updateIdle()
}

// ---- message intake ----

// MessageReceived implements section 4.3's message_received: decode,
// truncate, parse, flood-check, enqueue, drain. ircmsg.Parse owns the CRLF
// grammar and its own MaxLineLength clamp; this method additionally honors
// the configured (possibly smaller) receive limit before handing the line
// to it, preserving whatever line ending Conn.Read produced.
func (s *Session) MessageReceived(line string) {
	line = strings.ToValidUTF8(line, "�")

	if strings.TrimRight(line, "\r\n") == "" {
		return
	}

	limit := s.srv.Config.Limits.Line
	if body := strings.TrimRight(line, "\r\n"); len(body) > limit {
		ending := "\n"
		if strings.HasSuffix(line, "\r\n") {
			ending = "\r\n"
		}
		line = body[:limit] + ending
	}

	m, err := ircmsg.Parse(line)
	if err != nil && err != ircmsg.ErrTruncated {
		s.srv.log.Printf("session %s: invalid message: %q: %s", s, line, err)
		return
	}

	if len(s.Recvq) >= s.srv.Config.RecvqLen {
		s.Quit("Excess flood")
		return
	}

	s.Recvq = append(s.Recvq, m)
	s.DrainQueue()
}

// DrainQueue dispatches queued messages on the protocol bus in FIFO order.
// Re-entrancy safe: a handler invoked from here may itself call DrainQueue
// (or enqueue via MessageReceived) without double-processing, since each
// iteration pops from the front before dispatching.
func (s *Session) DrainQueue() {
	for len(s.Recvq) > 0 {
		m := s.Recvq[0]
		s.Recvq = s.Recvq[1:]
		s.updateIdle()
		s.srv.Bus.DispatchProtocol(s, m)
	}
}

// ---- lifecycle ----

// Quit implements section 4.3: emit client quit, synthesize and fan out a
// QUIT, then exit.
func (s *Session) Quit(reason string) {
	if !s.Connected {
		return
	}

	s.srv.Bus.DispatchCore("client quit", CoreEvent{"session": s, "reason": reason})

	if s.Registered {
		peers := s.srv.Router.CommonPeers(s, nil, "")
		quitMsg := ircmsg.Message{Command: "QUIT", Params: []string{reason}}
		for _, peer := range peers {
			if peer == s {
				continue
			}
			s.srv.Router.deliver(peer, s, quitMsg)
		}
	}

	s.Exit()
}

// Kill implements section 4.3: emit client killed, send KILL to the
// target, then quit with the composed reason. Event order for observers is
// killed -> quit, preserved per DESIGN NOTES.
func (s *Session) Kill(source, reason string) {
	s.srv.Bus.DispatchCore("client killed", CoreEvent{"session": s, "source": source, "reason": reason})

	s.DumpVerb("KILL", []string{s.Nickname, reason}, false)

	s.Quit(fmt.Sprintf("Killed (%s (%s))", source, reason))
}

// Exit is idempotent teardown: cancel timers, mark disconnected, close
// transport, drop channel memberships, remove from the registry, record
// history if it was registered.
func (s *Session) Exit() {
	if !s.Connected {
		return
	}
	s.Connected = false

	s.stopTimers()

	for _, mem := range s.Channels {
		mem.Channel.removeMember(s)
	}
	s.Channels = nil

	if s.Registered {
		s.srv.Registry.Unregister(s.Nickname)

		account := ""
		if s.Account != nil {
			account = *s.Account
		}
		s.srv.Registry.RecordHistory(HistoryEntry{
			Nickname: s.Nickname,
			Username: s.Username,
			Hostname: s.Hostname,
			RealName: s.RealName,
			Account:  account,
		})
	}

	if !s.sendQueueExceeded {
		close(s.writeChan)
	} else {
		// Writer may be stuck mid-send; close the transport directly instead
		// of closing a channel a blocked send still references.
		_ = s.Conn.Close()
	}
}

// ---- hostmask / legacy modes ----

// Hostmask returns nick!user@host with tail suppression when a component is
// empty, per the glossary.
func (s *Session) Hostmask() string {
	h := s.Nickname
	if s.Username != "" {
		h += "!" + s.Username
	}
	if s.Hostname != "" {
		h += "@" + s.Hostname
	}
	return h
}

// SetLegacyModes walks a +/- toggle string against legacyModeTable. Unknown
// letters emit 501. 'o' cannot be granted this way, only removed.
func (s *Session) SetLegacyModes(toggle string) {
	action := byte(0)
	changed := false

	for i := 0; i < len(toggle); i++ {
		c := toggle[i]
		if c == '+' || c == '-' {
			action = c
			continue
		}
		if action == 0 {
			s.DumpNumeric("501", []string{"Unknown MODE flag"})
			continue
		}

		prop, ok := propForLetter(c)
		if !ok {
			s.DumpNumeric("501", []string{"Unknown MODE flag"})
			continue
		}

		if c == 'o' && action == '+' {
			// Operator status cannot be granted via MODE; ignored.
			continue
		}

		switch action {
		case '+':
			s.Props[prop] = true
		case '-':
			delete(s.Props, prop)
		}
		changed = true
	}

	if changed {
		s.dumpLegacyModeDiff()
	}
}

// dumpLegacyModeDiff emits a MODE line carrying the full current Props
// projection (LegacyModes, e.g. "+w"). It does not compute a diff: letters
// that were removed are not listed with '-', and letters that were already
// set are repeated. Grounded on local_user.go's per-letter MODE replies.
func (s *Session) dumpLegacyModeDiff() {
	s.DumpVerb("MODE", []string{s.Nickname, s.LegacyModes()}, false)
}

// LegacyModes returns the canonical "+abc" projection of Props through
// legacyModeTable, sorted by letter.
func (s *Session) LegacyModes() string {
	letters := make([]byte, 0, len(legacyModeTable))
	for _, entry := range legacyModeTable {
		if s.Props[entry.Prop] {
			letters = append(letters, entry.Letter)
		}
	}
	sort.Slice(letters, func(i, j int) bool { return letters[i] < letters[j] })

	out := "+"
	for _, l := range letters {
		out += string(l)
	}
	return out
}

func propForLetter(letter byte) (string, bool) {
	for _, entry := range legacyModeTable {
		if entry.Letter == letter {
			return entry.Prop, true
		}
	}
	return "", false
}

// HasRole reports whether this session's role grants token.
func (s *Session) HasRole(token string) bool {
	if s.RoleName == nil {
		return false
	}
	return s.srv.Roles.Has(*s.RoleName, token)
}

// HasCap reports whether the session has negotiated cap, case-insensitively.
func (s *Session) HasCap(cap string) bool {
	_, ok := s.Caps[casefold(cap)]
	return ok
}
