package main

import (
	"strconv"
	"strings"

	"github.com/horgh/mossd/ircmsg"
)

// capEntry is one supported capability, with an optional value (e.g. sasl's
// mechanism list) advertised in CAP LS.
type capEntry struct {
	Name  string
	Value string
}

// supportedCaps builds the server's advertised capability set. No donor
// file implements CAP at all (catbox's local_client.go silently ignores the
// verb); this is new logic grounded directly on SPEC_FULL.md section 4.3's
// CAP paragraph and the IRCv3 capability-negotiation spec it summarizes.
func supportedCaps(srv *Server) []capEntry {
	caps := []capEntry{
		{Name: "account-tag"},
		{Name: "multi-prefix"},
		{Name: "server-time"},
	}

	if len(srv.SASLMechanisms) > 0 {
		caps = append(caps, capEntry{Name: "sasl", Value: strings.Join(srv.SASLMechanisms, ",")})
	}

	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = c.Name
	}

	for _, ext := range srv.Config.Extensions {
		name := strings.ToLower(ext)
		if hasToken(strings.Join(names, " "), name) {
			continue
		}
		caps = append(caps, capEntry{Name: name})
		names = append(names, name)
	}

	return caps
}

func findCap(caps []capEntry, name string) (capEntry, bool) {
	name = casefold(name)
	for _, c := range caps {
		if casefold(c.Name) == name {
			return c, true
		}
	}
	return capEntry{}, false
}

// registerCapHandlers installs the CAP protocol-bus handler. Called once
// from NewServer in the fixed extension-registration order SPEC_FULL.md's
// DESIGN NOTES describe.
func registerCapHandlers(bus *EventBus) {
	bus.OnProtocol("CAP", ProtocolHandler{
		MinParams:         1,
		AllowUnregistered: true,
		Func:              handleCAP,
	})
}

// handleCAP dispatches on the CAP subcommand. ACK/NAK/LS replies are things
// we send in response to LS/REQ, never subcommands we receive.
func handleCAP(s *Session, m ircmsg.Message) {
	sub := strings.ToUpper(m.Params[0])

	switch sub {
	case "LS":
		handleCapLS(s, m)
	case "LIST":
		handleCapLIST(s)
	case "REQ":
		handleCapREQ(s, m)
	case "END":
		handleCapEND(s)
	default:
		// NEW/DEL and anything else we don't originate requests for; accepted
		// as a no-op per DESIGN NOTES.
	}
}

func handleCapLS(s *Session, m ircmsg.Message) {
	if len(m.Params) > 1 {
		if v, err := strconv.Atoi(m.Params[1]); err == nil {
			s.CapVersion = v
		}
	}

	s.PushRegistrationLock(lockCAP)

	caps := supportedCaps(s.srv)
	entries := make([]string, 0, len(caps))
	for _, c := range caps {
		if s.CapVersion >= 302 && c.Value != "" {
			entries = append(entries, c.Name+"="+c.Value)
		} else {
			entries = append(entries, c.Name)
		}
	}

	s.DumpVerb("CAP", []string{"*", "LS", strings.Join(entries, " ")}, false)
}

func handleCapLIST(s *Session) {
	names := make([]string, 0, len(s.Caps))
	for name := range s.Caps {
		names = append(names, name)
	}
	s.DumpVerb("CAP", []string{"*", "LIST", strings.Join(names, " ")}, false)
}

func handleCapREQ(s *Session, m ircmsg.Message) {
	if len(m.Params) < 2 {
		s.DumpVerb("CAP", []string{"*", "NAK", ""}, false)
		return
	}

	requested := strings.Fields(m.Params[1])
	supported := supportedCaps(s.srv)

	resolved := make(map[string]string, len(requested))
	for _, token := range requested {
		entry, ok := findCap(supported, token)
		if !ok {
			s.DumpVerb("CAP", []string{"*", "NAK", m.Params[1]}, false)
			return
		}
		resolved[casefold(entry.Name)] = entry.Value
	}

	for name, value := range resolved {
		s.Caps[name] = value
	}
	s.DumpVerb("CAP", []string{"*", "ACK", m.Params[1]}, false)
}

func handleCapEND(s *Session) {
	s.ReleaseRegistrationLock(lockCAP)
}
