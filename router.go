package main

import "github.com/horgh/mossd/ircmsg"

// Router implements section 4.4: common-peer computation and per-recipient
// outbound postprocessing. Grounded on the donor's repeated
// "for memberUID := range channel.Members" fan-out loops scattered through
// local_user.go (joinCommand, privmsgCommand, quit, nickCommand), factored
// out into one reusable component since this system needs the same
// computation for QUIT, PRIVMSG, NICK, and anything else channel-scoped.
type Router struct {
	srv *Server
}

// NewRouter returns a Router bound to srv.
func NewRouter(srv *Server) *Router {
	return &Router{srv: srv}
}

// CommonPeers returns the de-duplicated set of sessions sharing at least
// one channel with s, plus s itself, per the glossary's "Common peers"
// definition. exclude removes specific sessions from the result regardless
// of membership. If requireCap is non-empty, only sessions (including s)
// that have negotiated that capability are included.
func (r *Router) CommonPeers(s *Session, exclude map[*Session]struct{}, requireCap string) []*Session {
	seen := map[*Session]struct{}{}
	var out []*Session

	add := func(peer *Session) {
		if _, dup := seen[peer]; dup {
			return
		}
		if exclude != nil {
			if _, excluded := exclude[peer]; excluded {
				return
			}
		}
		if requireCap != "" && !peer.HasCap(requireCap) {
			return
		}
		seen[peer] = struct{}{}
		out = append(out, peer)
	}

	add(s)
	for _, mem := range s.Channels {
		for member := range mem.Channel.Members {
			add(member)
		}
	}

	return out
}

// Deliver sends m, appearing to be from source, to every common peer of
// source (minus source itself unless includeSource is true), applying
// per-recipient postprocessing to each.
func (r *Router) Deliver(source *Session, m ircmsg.Message, includeSource bool) {
	peers := r.CommonPeers(source, nil, "")
	for _, peer := range peers {
		if peer == source && !includeSource {
			continue
		}
		r.deliver(peer, source, m)
	}
}

// deliver sends m to exactly one recipient, applying the per-recipient
// postprocessing section 4.4 describes: account-tag injection and
// hostmask source rewriting. The clone happens inside Session.DumpMessage,
// which also runs the "outbound message postprocess" core-bus hook.
func (r *Router) deliver(recipient, source *Session, m ircmsg.Message) {
	out := m.Clone()

	if recipient.HasCap("account-tag") {
		account := "*"
		if source.Account != nil {
			account = *source.Account
		}
		out.SetTag("account", account)
	}

	out.Prefix = source.Hostmask()

	recipient.DumpMessage(out)
}
