package main

import (
	"testing"

	"github.com/horgh/mossd/ircmsg"
	"github.com/stretchr/testify/require"
)

func TestDispatchProtocolUnknownCommand(t *testing.T) {
	srv := newTestServer()
	s := registeredSession(srv, 1, "alice")

	srv.Bus.DispatchProtocol(s, ircmsg.Message{Command: "NOTACOMMAND"})
	lines := drain(s, 1)
	require.Contains(t, lines[0], "421")
}

func TestDispatchProtocolRequiresRegistrationUnlessAllowed(t *testing.T) {
	srv := newTestServer()
	s := newTestSession(srv, 1)

	// JOIN requires registration and isn't flagged AllowUnregistered; it
	// should be silently dropped rather than erroring.
	srv.Bus.DispatchProtocol(s, ircmsg.Message{Command: "JOIN", Params: []string{"#a"}})
	require.Empty(t, s.writeChan)
}

func TestDispatchProtocolNotEnoughParams(t *testing.T) {
	srv := newTestServer()
	s := registeredSession(srv, 1, "alice")

	srv.Bus.DispatchProtocol(s, ircmsg.Message{Command: "PRIVMSG", Params: []string{"alice"}})
	lines := drain(s, 1)
	require.Contains(t, lines[0], "461")
}

func TestInvokeProtocolRecoversFromPanic(t *testing.T) {
	bus := newEventBus()
	bus.OnProtocol("BOOM", ProtocolHandler{
		Func: func(s *Session, m ircmsg.Message) { panic("boom") },
	})

	srv := newTestServer()
	s := registeredSession(srv, 1, "alice")

	require.NotPanics(t, func() {
		bus.DispatchProtocol(s, ircmsg.Message{Command: "BOOM"})
	})
}

func TestDispatchCoreRunsAllHandlersAndRecovers(t *testing.T) {
	bus := newEventBus()
	var calls []string

	bus.OnCore("topic", func(ev CoreEvent) { calls = append(calls, "first") })
	bus.OnCore("topic", func(ev CoreEvent) { panic("boom") })
	bus.OnCore("topic", func(ev CoreEvent) { calls = append(calls, "third") })

	require.NotPanics(t, func() {
		bus.DispatchCore("topic", CoreEvent{})
	})
	require.Equal(t, []string{"first", "third"}, calls)
}
