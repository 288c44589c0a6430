package main

import (
	"encoding/base64"
	"testing"

	"github.com/horgh/mossd/ircmsg"
	"github.com/stretchr/testify/require"
)

func TestSASLPlainSuccess(t *testing.T) {
	srv := newTestServer()
	hash, err := srv.Hashing.Encrypt("hunter2")
	require.NoError(t, err)
	srv.Store.(*MemoryDataStore).PutAccount("bob", AccountRecord{PassphraseHash: hash, Verified: true})

	s := newTestSession(srv, 1)
	s.Nickname = "bob"
	s.Username = "bob"

	srv.Bus.DispatchProtocol(s, ircmsg.Message{Command: "AUTHENTICATE", Params: []string{"PLAIN"}})
	lines := drain(s, 1)
	require.Equal(t, "AUTHENTICATE +\r\n", lines[0])

	payload := base64.StdEncoding.EncodeToString([]byte("\x00bob\x00hunter2"))
	srv.Bus.DispatchProtocol(s, ircmsg.Message{Command: "AUTHENTICATE", Params: []string{payload}})

	lines = drain(s, 2)
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "900")
	require.Contains(t, lines[0], "bob")
	require.Contains(t, lines[1], "903")
	require.NotNil(t, s.Account)
	require.Equal(t, "bob", *s.Account)
}

func TestSASLPlainWrongPassword(t *testing.T) {
	srv := newTestServer()
	hash, _ := srv.Hashing.Encrypt("hunter2")
	srv.Store.(*MemoryDataStore).PutAccount("bob", AccountRecord{PassphraseHash: hash, Verified: true})

	s := newTestSession(srv, 1)
	srv.Bus.DispatchProtocol(s, ircmsg.Message{Command: "AUTHENTICATE", Params: []string{"PLAIN"}})
	drain(s, 1)

	payload := base64.StdEncoding.EncodeToString([]byte("\x00bob\x00wrongpass"))
	srv.Bus.DispatchProtocol(s, ircmsg.Message{Command: "AUTHENTICATE", Params: []string{payload}})

	lines := drain(s, 1)
	require.Contains(t, lines[0], "904")
	require.Nil(t, s.Account)
}

func TestSASLAbort(t *testing.T) {
	srv := newTestServer()
	s := newTestSession(srv, 1)

	srv.Bus.DispatchProtocol(s, ircmsg.Message{Command: "AUTHENTICATE", Params: []string{"PLAIN"}})
	drain(s, 1)
	require.NotNil(t, s.SASL)

	srv.Bus.DispatchProtocol(s, ircmsg.Message{Command: "AUTHENTICATE", Params: []string{"*"}})
	lines := drain(s, 1)
	require.Contains(t, lines[0], "906")
	require.Nil(t, s.SASL)
}

func TestSASLInProgressAbortsBeforeWelcomeBurst(t *testing.T) {
	srv := newTestServer()
	s := newTestSession(srv, 1)
	s.Nickname = "alice"
	s.Username = "alice"

	mech := "PLAIN"
	s.SASL = &mech

	s.ReleaseRegistrationLock(lockNick, lockUser, lockDNS)

	lines := drain(s, 2)
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "906", "SASL abort fires before the welcome burst")
	require.Contains(t, lines[1], "001")
	require.Nil(t, s.SASL)
}

func TestSASLMechanismUnsupported(t *testing.T) {
	srv := newTestServer()
	s := newTestSession(srv, 1)

	srv.Bus.DispatchProtocol(s, ircmsg.Message{Command: "AUTHENTICATE", Params: []string{"EXTERNAL"}})
	lines := drain(s, 1)
	require.Contains(t, lines[0], "904")
}
