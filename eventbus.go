package main

import "github.com/horgh/mossd/ircmsg"

// ProtocolHandler handles one inbound protocol message (verb or numeric) for
// a session.
type ProtocolHandler struct {
	// MinParams is the minimum number of Params the message must carry. Fewer
	// than this and dispatch replies 461 and never invokes the handler.
	MinParams int

	// AllowUnregistered lets this handler run before the session has
	// completed registration. Everything else is silently dropped pre
	// registration.
	AllowUnregistered bool

	Func func(s *Session, m ircmsg.Message)
}

// CoreEvent is the free-form record passed to core-bus handlers.
type CoreEvent map[string]interface{}

// CoreHandler handles one core-bus topic.
type CoreHandler func(ev CoreEvent)

// EventBus holds the two registries described in SPEC_FULL.md section 4.2:
// a protocol bus keyed by uppercased verb/numeric, and a core bus keyed by
// free-form topic string.
//
// Grounded on mammon/client.py's eventmgr_rfc1459/eventmgr_core pair
// (@eventmgr_rfc1459.message(...) decorators carrying min_params/
// allow_unregistered) and catbox's simpler Event{Type, Client, Message}
// dispatch in local_client.go/local_user.go. The donor registers handlers at
// Python module import time; the Go mapping used here is explicit: each
// extension exposes a register(bus *EventBus) function called once, in a
// fixed order, from NewServer.
type EventBus struct {
	protocol map[string][]ProtocolHandler
	core     map[string][]CoreHandler
	log      logger
}

func newEventBus() *EventBus {
	return &EventBus{
		protocol: map[string][]ProtocolHandler{},
		core:     map[string][]CoreHandler{},
		log:      newLogger("eventbus"),
	}
}

// OnProtocol registers a protocol-bus handler for a verb or numeric. Verbs
// are matched case-insensitively by being upper-cased here, matching
// ircmsg.Parse's own upper-casing of Command.
func (b *EventBus) OnProtocol(verb string, h ProtocolHandler) {
	verb = upper(verb)
	b.protocol[verb] = append(b.protocol[verb], h)
}

// OnCore registers a core-bus handler for a topic.
func (b *EventBus) OnCore(topic string, h CoreHandler) {
	b.core[topic] = append(b.core[topic], h)
}

// DispatchProtocol applies the policy in SPEC_FULL.md section 4.2 and runs
// every handler registered for m.Command, in registration order.
func (b *EventBus) DispatchProtocol(s *Session, m ircmsg.Message) {
	handlers, ok := b.protocol[m.Command]
	if !ok || len(handlers) == 0 {
		// Unknown command. Answered with 421 only post-registration;
		// pre-registration it is silently dropped here.
		if s.Registered {
			s.DumpNumeric("421", []string{m.Command, "Unknown command"})
		}
		return
	}

	ranAny := false
	for _, h := range handlers {
		if !s.Registered && !h.AllowUnregistered {
			continue
		}

		if len(m.Params) < h.MinParams {
			s.DumpNumeric("461", []string{m.Command, "Not enough parameters"})
			return
		}

		ranAny = true
		b.invokeProtocol(s, m, h)
	}

	if !ranAny && !s.Registered {
		// Every handler for this verb requires registration and the session
		// isn't registered: silently drop, per dispatch policy step 1.
		return
	}
}

// invokeProtocol runs a single handler under a recover guard so a handler
// panic is trapped, logged, and never escalates to the scheduler goroutine,
// per SPEC_FULL.md section 4.2/7.
func (b *EventBus) invokeProtocol(s *Session, m ircmsg.Message, h ProtocolHandler) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Printf("handler for %s panicked: %v", m.Command, r)
		}
	}()
	h.Func(s, m)
}

// DispatchCore runs every handler registered for topic, in registration
// order, each under its own recover guard.
func (b *EventBus) DispatchCore(topic string, ev CoreEvent) {
	for _, h := range b.core[topic] {
		b.invokeCore(topic, ev, h)
	}
}

func (b *EventBus) invokeCore(topic string, ev CoreEvent, h CoreHandler) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Printf("core handler for %q panicked: %v", topic, r)
		}
	}()
	h(ev)
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
