package main

import (
	"fmt"

	"github.com/horgh/mossd/ircmsg"
)

// registerCoreHandlers installs the RFC1459 protocol handlers that drive a
// Session through registration and ordinary traffic. Grounded on
// local_client.go's nickCommand/userCommand and local_user.go's
// nickCommand/quitCommand/pingCommand/modeCommand, generalized from the
// donor's two-phase LocalClient/LocalUser split (a pre-registration object
// promoted to a different type) into a single Session type gated by the
// registration-lock set instead.
func registerCoreHandlers(bus *EventBus) {
	bus.OnProtocol("NICK", ProtocolHandler{MinParams: 1, AllowUnregistered: true, Func: handleNick})
	bus.OnProtocol("USER", ProtocolHandler{MinParams: 4, AllowUnregistered: true, Func: handleUser})
	bus.OnProtocol("QUIT", ProtocolHandler{MinParams: 0, AllowUnregistered: true, Func: handleQuit})
	bus.OnProtocol("PING", ProtocolHandler{MinParams: 0, AllowUnregistered: true, Func: handlePing})
	bus.OnProtocol("PONG", ProtocolHandler{MinParams: 0, AllowUnregistered: true, Func: handlePong})
	bus.OnProtocol("MODE", ProtocolHandler{MinParams: 1, Func: handleMode})
	bus.OnProtocol("MOTD", ProtocolHandler{MinParams: 0, Func: handleMotd})
	bus.OnProtocol("JOIN", ProtocolHandler{MinParams: 1, Func: handleJoin})
	bus.OnProtocol("PART", ProtocolHandler{MinParams: 1, Func: handlePart})
	bus.OnProtocol("PRIVMSG", ProtocolHandler{MinParams: 2, Func: handlePrivmsg})
	bus.OnProtocol("NOTICE", ProtocolHandler{MinParams: 2, Func: handlePrivmsg})
	bus.OnProtocol("OPER", ProtocolHandler{MinParams: 2, Func: handleOper})
}

// handleOper implements OPER: verify a configured operator's password against
// the hashing provider, then grant the role named alongside it. Grounded on
// local_user.go's operCommand, generalized from the donor's single 'o' mode
// flag to the role-token grant a HasRole check consults. "Operator roles
// beyond capability check" are explicitly out of this implementation's
// scope, so this only authenticates and assigns the role; it does not police
// what the role is later used for.
func handleOper(s *Session, m ircmsg.Message) {
	name := m.Params[0]
	password := m.Params[1]

	if s.RoleName != nil {
		s.DumpNumeric(ircmsg.ReplyYoureOper, []string{"You are already an IRC operator"})
		return
	}

	oper, exists := s.srv.Config.Opers[name]
	if !exists || !s.srv.Hashing.Enabled() || !s.srv.Hashing.Verify(password, oper.PasswordHash) {
		s.DumpNumeric("464", []string{"Password incorrect"})
		return
	}

	role := oper.Role
	s.RoleName = &role
	s.Props["operator"] = true

	s.dumpLegacyModeDiff()
	s.DumpNumeric(ircmsg.ReplyYoureOper, []string{"You are now an IRC operator"})
}

// handleNick implements the NICK command both at registration time and
// after, per section 4.3's registration state machine: collision/validity
// checks happen before the NICK lock is released, so a bad nick never
// partially registers the session.
func handleNick(s *Session, m ircmsg.Message) {
	if len(m.Params) == 0 {
		s.DumpNumeric("431", []string{"No nickname given"})
		return
	}
	nick := m.Params[0]

	limit := s.srv.Config.Limits.Nick
	if len(nick) > limit {
		nick = nick[:limit]
	}

	if !isValidNick(limit, nick) {
		s.DumpNumeric("432", []string{nick, "Erroneous nickname"})
		return
	}

	if existing, ok := s.srv.Registry.Get(nick); ok && existing != s {
		s.DumpNumeric("433", []string{nick, "Nickname is already in use"})
		return
	}

	oldNick := s.Nickname
	wasRegistered := s.Registered

	if wasRegistered {
		s.srv.Registry.Rename(oldNick, nick, s)
		s.srv.Router.Deliver(s, ircmsg.Message{Command: "NICK", Params: []string{nick}}, true)
	}

	s.Nickname = nick

	if !wasRegistered {
		s.ReleaseRegistrationLock(lockNick)
	}
}

// handleUser implements USER: only meaningful pre-registration (repeat USER
// is an error per RFC), releases the USER lock.
func handleUser(s *Session, m ircmsg.Message) {
	if s.Registered {
		s.DumpNumeric("462", []string{"Unauthorized command (already registered)"})
		return
	}

	limit := s.srv.Config.Limits.User
	user := m.Params[0]
	if len(user) > limit {
		user = user[:limit]
	}
	if !isValidUser(limit, user) {
		s.DumpVerb("ERROR", []string{"Invalid username"}, true)
		return
	}
	s.Username = user
	s.RealName = m.Params[3]

	s.ReleaseRegistrationLock(lockUser)
}

func handleQuit(s *Session, m ircmsg.Message) {
	reason := "Quit:"
	if len(m.Params) > 0 {
		reason = "Quit: " + m.Params[0]
	}
	s.Quit(reason)
}

func handlePing(s *Session, m ircmsg.Message) {
	if len(m.Params) == 0 {
		s.DumpNumeric("409", []string{"No origin specified"})
		return
	}
	s.DumpVerb("PONG", []string{s.ServerName, m.Params[0]}, false)
}

func handlePong(s *Session, m ircmsg.Message) {
	s.clearPingCookie()
}

// handleMode applies only the legacy user-mode bridge (section 4.3);
// channel mode is out of scope beyond membership.
func handleMode(s *Session, m ircmsg.Message) {
	target := m.Params[0]

	if !casefoldEqual(target, s.Nickname) {
		s.DumpNumeric("502", []string{"Cannot change mode for other users"})
		return
	}

	if len(m.Params) == 1 {
		s.DumpNumeric("221", []string{s.LegacyModes()})
		return
	}

	s.SetLegacyModes(m.Params[1])
}

func handleMotd(s *Session, m ircmsg.Message) {
	s.DumpNumeric("375", []string{fmt.Sprintf("- %s Message of the day -", s.ServerName)})
	s.DumpNumeric("372", []string{"- " + s.srv.Config.MOTD})
	s.DumpNumeric("376", []string{"End of MOTD command"})
}

func handleJoin(s *Session, m ircmsg.Message) {
	name := m.Params[0]
	if !isValidChannel(s.srv.Config.Limits.Channel, name) {
		s.DumpNumeric("403", []string{name, "Invalid channel name"})
		return
	}

	mem, already := s.srv.Channels.Join(s, name)
	if already {
		return
	}

	s.srv.Router.Deliver(s, ircmsg.Message{Command: "JOIN", Params: []string{mem.Channel.Name}}, true)

	names := make([]string, 0, len(mem.Channel.Members))
	for member := range mem.Channel.Members {
		names = append(names, member.Nickname)
	}
	s.DumpNumeric("353", []string{"=", mem.Channel.Name, joinNames(names)})
	s.DumpNumeric("366", []string{mem.Channel.Name, "End of NAMES list"})
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += " "
		}
		out += n
	}
	return out
}

func handlePart(s *Session, m ircmsg.Message) {
	name := m.Params[0]

	reason := ""
	if len(m.Params) > 1 {
		reason = m.Params[1]
	}

	if _, ok := s.srv.Channels.Get(name); !ok {
		s.DumpNumeric("403", []string{name, "No such channel"})
		return
	}

	partMsg := ircmsg.Message{Command: "PART", Params: []string{name}}
	if reason != "" {
		partMsg.Params = append(partMsg.Params, reason)
	}
	s.srv.Router.Deliver(s, partMsg, true)

	if !s.srv.Channels.Part(s, name) {
		s.DumpNumeric("442", []string{name, "You're not on that channel"})
	}
}

func handlePrivmsg(s *Session, m ircmsg.Message) {
	target := m.Params[0]
	text := m.Params[1]

	if target[0] == '#' {
		c, ok := s.srv.Channels.Get(target)
		if !ok {
			s.DumpNumeric("403", []string{target, "No such channel"})
			return
		}
		if _, onChan := c.Members[s]; !onChan {
			s.DumpNumeric("404", []string{target, "Cannot send to channel"})
			return
		}

		msg := ircmsg.Message{Command: m.Command, Params: []string{c.Name, text}}
		for member := range c.Members {
			if member == s {
				continue
			}
			s.srv.Router.deliver(member, s, msg)
		}
		return
	}

	peer, ok := s.srv.Registry.Get(target)
	if !ok {
		s.DumpNumeric("401", []string{target, "No such nick/channel"})
		return
	}
	s.srv.Router.deliver(peer, s, ircmsg.Message{Command: m.Command, Params: []string{target, text}})
}
