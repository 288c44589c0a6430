package main

import (
	"testing"

	"github.com/horgh/mossd/ircmsg"
	"github.com/stretchr/testify/require"
)

func TestHostmaskSuppressesEmptyComponents(t *testing.T) {
	s := &Session{Nickname: "alice"}
	require.Equal(t, "alice", s.Hostmask())

	s.Username = "a"
	require.Equal(t, "alice!a", s.Hostmask())

	s.Hostname = "host.example"
	require.Equal(t, "alice!a@host.example", s.Hostmask())
}

func TestLegacyModesRoundTrip(t *testing.T) {
	srv := newTestServer()
	s := newTestSession(srv, 1)
	s.Nickname = "alice"

	require.Equal(t, "+", s.LegacyModes())

	s.SetLegacyModes("+iw")
	require.Equal(t, "+iw", s.LegacyModes())

	s.SetLegacyModes("+o") // cannot be granted via MODE
	require.Equal(t, "+iw", s.LegacyModes())

	s.SetLegacyModes("-i")
	require.Equal(t, "+w", s.LegacyModes())
}

func TestRegistrationFiresExactlyOnceWhenLockEmpties(t *testing.T) {
	srv := newTestServer()
	s := newTestSession(srv, 1)
	s.Nickname = "alice"
	s.Username = "alice"

	s.ReleaseRegistrationLock(lockNick)
	require.False(t, s.Registered)
	s.ReleaseRegistrationLock(lockUser)
	require.False(t, s.Registered)
	s.ReleaseRegistrationLock(lockDNS)
	require.True(t, s.Registered)

	_, ok := srv.Registry.Get("alice")
	require.True(t, ok)

	// Releasing again must not re-fire registration or blow up.
	s.ReleaseRegistrationLock(lockNick)
	require.True(t, s.Registered)
}

func TestISupportSplitsAtThirteenTokensPerLine(t *testing.T) {
	srv := newTestServer()
	srv.Config.Extensions = []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	s := newTestSession(srv, 1)
	s.Nickname = "alice"

	s.dumpISupport()

	// 8 built-in tokens + 10 extensions = 18 tokens, split 13 + 5.
	lines := drain(s, 2)
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "are supported by this server")
	require.Contains(t, lines[1], "are supported by this server")
}

func TestMessageReceivedTruncatesOverLongLines(t *testing.T) {
	srv := newTestServer()
	srv.Config.Limits.Line = 20
	s := newTestSession(srv, 1)
	s.Nickname = "alice"
	s.Registered = true
	srv.Registry.Register(s)

	long := "PRIVMSG alice :aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\r\n"
	s.MessageReceived(long)

	// Truncation still leaves a parseable PRIVMSG; draining must not block.
	require.Empty(t, s.Recvq, "the message was parsed and drained, not left queued")
}

func TestMessageReceivedExcessFloodQuits(t *testing.T) {
	srv := newTestServer()
	srv.Config.RecvqLen = 2
	s := newTestSession(srv, 1)
	s.Nickname = "alice"

	// Simulate a backlog that never drained (e.g. a slow DrainQueue caller)
	// growing past the configured bound, then deliver one more: the queue
	// holds at most RecvqLen entries, so the new message is refused.
	s.Recvq = append(s.Recvq,
		ircmsg.Message{Command: "PING"},
		ircmsg.Message{Command: "PING"},
		ircmsg.Message{Command: "PING"})

	require.True(t, s.Connected)
	s.MessageReceived("PING\r\n")
	require.False(t, s.Connected, "excess flood quits the session")
}
