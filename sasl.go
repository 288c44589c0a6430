package main

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/horgh/mossd/ircmsg"
)

const saslMaxPayload = 400

// registerSASLHandlers installs the AUTHENTICATE protocol handler and the
// "sasl authenticate plain"/"client registered" core handlers, grounded
// closely on mammon/ext/ircv3/sasl.py's m_AUTHENTICATE/m_sasl_plain/
// m_sasl_unreglocked, adapted onto the Session/DataStore/HashingProvider
// shapes this system uses instead of mammon's dynamic ctx.data.
func registerSASLHandlers(bus *EventBus) {
	bus.OnProtocol("AUTHENTICATE", ProtocolHandler{
		MinParams:         1,
		AllowUnregistered: true,
		Func:              handleAuthenticate,
	})

	bus.OnCore("sasl authenticate plain", func(ev CoreEvent) {
		handleSASLPlain(ev)
	})

	bus.OnCore("client registered", func(ev CoreEvent) {
		s, _ := ev["session"].(*Session)
		if s == nil || s.SASL == nil {
			return
		}
		s.SASL = nil
		s.DumpNumeric("906", []string{"SASL authentication aborted"})
	})
}

func handleAuthenticate(s *Session, m ircmsg.Message) {
	payload := m.Params[0]

	if payload == "*" {
		if s.SASL != nil {
			s.SASL = nil
			s.DumpNumeric("906", []string{"SASL authentication aborted"})
		} else {
			s.DumpNumeric("904", []string{"SASL authentication failed"})
		}
		return
	}

	if s.SASL != nil {
		if len(payload) > saslMaxPayload {
			s.DumpNumeric("905", []string{"SASL message too long"})
			s.SASL = nil
			return
		}

		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			s.DumpNumeric("904", []string{"SASL authentication failed"})
			return
		}

		mech := *s.SASL
		s.srv.Bus.DispatchCore("sasl authenticate "+strings.ToLower(mech), CoreEvent{
			"session":   s,
			"mechanism": mech,
			"data":      data,
		})
		return
	}

	mech := strings.ToUpper(payload)
	if mech == "PLAIN" && saslMechanismSupported(s.srv, mech) {
		s.SASL = &mech
		s.DumpVerb("AUTHENTICATE", []string{"+"}, true)
		return
	}

	s.DumpNumeric("904", []string{"SASL authentication failed"})
}

func saslMechanismSupported(srv *Server, mech string) bool {
	for _, m := range srv.SASLMechanisms {
		if m == mech {
			return true
		}
	}
	return false
}

// handleSASLPlain verifies a decoded PLAIN payload (authzid \0 authcid \0
// passphrase, per RFC 4616) against the data store and hashing provider.
func handleSASLPlain(ev CoreEvent) {
	s, _ := ev["session"].(*Session)
	data, _ := ev["data"].([]byte)
	if s == nil {
		return
	}

	fields := strings.SplitN(string(data), "\x00", 3)
	if len(fields) != 3 {
		s.DumpNumeric("904", []string{"SASL authentication failed"})
		return
	}
	authcid := fields[1]
	passphrase := fields[2]

	record, ok := s.srv.Store.GetAccount(authcid)
	if !ok || !record.Verified || record.PassphraseHash == "" {
		s.DumpNumeric("904", []string{"SASL authentication failed"})
		return
	}

	if !s.srv.Hashing.Verify(passphrase, record.PassphraseHash) {
		s.DumpNumeric("904", []string{"SASL authentication failed"})
		return
	}

	account := authcid
	s.Account = &account
	s.srv.Bus.DispatchCore("account change", CoreEvent{"session": s, "account": account})
	s.SASL = nil

	hostmask := s.Hostmask()
	if hostmask == "" {
		hostmask = "*"
	}
	s.DumpNumeric("900", []string{hostmask, account, fmt.Sprintf("You are now logged in as %s", account)})
	s.DumpNumeric("903", []string{"SASL authentication successful"})
}
