package main

import (
	"testing"

	"github.com/horgh/mossd/ircmsg"
	"github.com/stretchr/testify/require"
)

func TestCommonPeersDedupAndExclude(t *testing.T) {
	srv := newTestServer()
	alice := newTestSession(srv, 1)
	bob := newTestSession(srv, 2)
	carol := newTestSession(srv, 3)
	alice.Nickname, bob.Nickname, carol.Nickname = "alice", "bob", "carol"

	srv.Channels.Join(alice, "#a")
	srv.Channels.Join(bob, "#a")
	srv.Channels.Join(bob, "#b")
	srv.Channels.Join(carol, "#b")

	// alice and carol share no channel directly, but both share one with bob;
	// CommonPeers only looks at the subject's own channels, so from alice's
	// perspective carol is not a common peer.
	peers := srv.Router.CommonPeers(alice, nil, "")
	require.ElementsMatch(t, []*Session{alice, bob}, peers)

	peers = srv.Router.CommonPeers(bob, nil, "")
	require.ElementsMatch(t, []*Session{alice, bob, carol}, peers)

	excluded := map[*Session]struct{}{bob: {}}
	peers = srv.Router.CommonPeers(bob, excluded, "")
	require.ElementsMatch(t, []*Session{alice, carol}, peers)
}

func TestCommonPeersRequireCap(t *testing.T) {
	srv := newTestServer()
	alice := newTestSession(srv, 1)
	bob := newTestSession(srv, 2)
	alice.Nickname, bob.Nickname = "alice", "bob"
	srv.Channels.Join(alice, "#a")
	srv.Channels.Join(bob, "#a")

	bob.Caps["account-tag"] = ""

	peers := srv.Router.CommonPeers(alice, nil, "account-tag")
	require.ElementsMatch(t, []*Session{bob}, peers)
}

func TestDeliverAppliesAccountTagAndHostmask(t *testing.T) {
	srv := newTestServer()
	alice := newTestSession(srv, 1)
	bob := newTestSession(srv, 2)
	alice.Nickname, alice.Username, alice.Hostname = "alice", "a", "host.example"
	bob.Nickname = "bob"
	account := "alice-account"
	alice.Account = &account
	bob.Caps["account-tag"] = ""

	srv.Channels.Join(alice, "#a")
	srv.Channels.Join(bob, "#a")

	srv.Router.Deliver(alice, ircmsg.Message{Command: "PRIVMSG", Params: []string{"#a", "hi"}}, false)

	lines := drain(bob, 1)
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "@account=alice-account")
	require.Contains(t, lines[0], ":alice!a@host.example PRIVMSG #a hi")

	require.Empty(t, alice.writeChan, "includeSource=false does not echo back to the source")
}
