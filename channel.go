package main

// Channel is a minimal membership-only view, per SPEC_FULL.md section 2
// item 6: full channel semantics (topic, modes beyond membership) are an
// external collaborator this expansion does not implement, but the router
// needs real membership data to fan out against. Trimmed down from the
// donor's Channel (which also tracked Topic and a linking TS6 timestamp,
// both server-to-server/topic concerns out of scope here).
type Channel struct {
	Name    string
	Members map[*Session]*Membership
}

// ChannelManager owns the process-wide channel table, keyed by casefolded
// name. Grounded on the donor's Catbox.Channels map (local_user.go's
// joinCommand/part), generalized from a TS6UID-keyed member set to a
// Session-keyed one since there is no cross-server UID concept here.
type ChannelManager struct {
	channels map[string]*Channel
}

// NewChannelManager returns an empty channel table.
func NewChannelManager() *ChannelManager {
	return &ChannelManager{channels: map[string]*Channel{}}
}

// Get returns the channel for name, if it exists, under casefolded lookup.
func (cm *ChannelManager) Get(name string) (*Channel, bool) {
	c, ok := cm.channels[casefold(name)]
	return c, ok
}

// GetOrCreate returns the channel for name, creating an empty one if it did
// not already exist.
func (cm *ChannelManager) GetOrCreate(name string) *Channel {
	key := casefold(name)
	c, ok := cm.channels[key]
	if ok {
		return c
	}
	c = &Channel{Name: name, Members: map[*Session]*Membership{}}
	cm.channels[key] = c
	return c
}

// Join adds s to the channel named name, creating the channel if needed,
// and appends the resulting membership to s.Channels. Returns the
// membership and whether s was already a member.
func (cm *ChannelManager) Join(s *Session, name string) (*Membership, bool) {
	c := cm.GetOrCreate(name)
	if mem, ok := c.Members[s]; ok {
		return mem, true
	}

	mem := &Membership{Channel: c, Modes: map[byte]struct{}{}}
	c.Members[s] = mem
	s.Channels = append(s.Channels, mem)
	return mem, false
}

// removeMember drops s from c's member set. It does not touch the channel
// table; Part is what drops a channel from the table once it is empty.
func (c *Channel) removeMember(s *Session) {
	delete(c.Members, s)
}

// Part removes s from the channel named name, dropping the channel from the
// table if that empties it, and removing the membership record from
// s.Channels. Returns false if s was not a member (or the channel does not
// exist).
func (cm *ChannelManager) Part(s *Session, name string) bool {
	key := casefold(name)
	c, ok := cm.channels[key]
	if !ok {
		return false
	}
	if _, ok := c.Members[s]; !ok {
		return false
	}

	c.removeMember(s)
	for i, mem := range s.Channels {
		if mem.Channel == c {
			s.Channels = append(s.Channels[:i], s.Channels[i+1:]...)
			break
		}
	}

	if len(c.Members) == 0 {
		delete(cm.channels, key)
	}
	return true
}
