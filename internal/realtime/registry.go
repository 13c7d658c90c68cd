package realtime

import (
	"sort"
	"sync"
)

// MemberInfo is the per-subscription metadata tracked on presence channels.
type MemberInfo struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// memberEvent is the payload of member_added / member_removed frames.
type memberEvent struct {
	Channel string     `json:"channel"`
	Member  MemberInfo `json:"member"`
}

// subscribedEvent is sent to a connection when its subscription succeeds.
// Members is only populated for presence channels.
type subscribedEvent struct {
	Channel string       `json:"channel"`
	Members []MemberInfo `json:"members,omitempty"`
}

// entry is the live state of one channel: the set of subscribed connections
// with their presence metadata. Each entry has its own lock so channels do
// not contend with each other.
type entry struct {
	mu      sync.Mutex
	kind    Kind
	members map[*Conn]MemberInfo
}

// Registry maps channel names to their current subscribers. Channels exist
// only while subscribed: an entry is created on first subscribe and removed
// when its member set empties.
type Registry struct {
	gate *Gate

	mu       sync.RWMutex
	channels map[string]*entry
	conns    map[*Conn]map[string]struct{}
}

// NewRegistry builds an empty registry guarded by the given gate.
func NewRegistry(gate *Gate) *Registry {
	return &Registry{
		gate:     gate,
		channels: make(map[string]*entry),
		conns:    make(map[*Conn]map[string]struct{}),
	}
}

// Subscribe adds (conn, channel) after the gate admits it. Subscribing twice
// to the same channel is idempotent. A denial refuses only this subscription;
// the connection stays up.
//
// On success the connection receives a subscription_succeeded frame; on
// presence channels the other members receive member_added and the new
// member receives the current roster.
func (r *Registry) Subscribe(conn *Conn, channel, grant string) error {
	if err := r.gate.Admit(conn, channel, grant); err != nil {
		return err
	}

	var (
		e      *entry
		info   MemberInfo
		others []*Conn
		roster []MemberInfo
	)
	for {
		e = r.getOrCreate(channel)

		// Hold the registry read lock across the member insert: collect
		// needs the write lock, so the entry cannot be dropped between the
		// lookup and the insert. A stale entry (collected after getOrCreate
		// returned it) is detected and the lookup retried.
		r.mu.RLock()
		if r.channels[channel] != e {
			r.mu.RUnlock()
			continue
		}

		e.mu.Lock()
		if _, exists := e.members[conn]; exists {
			e.mu.Unlock()
			r.mu.RUnlock()
			// Idempotent: re-acknowledge without duplicating presence events.
			conn.Deliver(Frame{
				Event:   EventSubscribed,
				Channel: channel,
				Data:    mustRaw(subscribedEvent{Channel: channel}),
			})
			return nil
		}
		info = MemberInfo{UserID: conn.UserID, Username: conn.Username}
		others = make([]*Conn, 0, len(e.members))
		roster = make([]MemberInfo, 0, len(e.members)+1)
		for c, mi := range e.members {
			others = append(others, c)
			roster = append(roster, mi)
		}
		roster = append(roster, info)
		e.members[conn] = info
		e.mu.Unlock()
		r.mu.RUnlock()
		break
	}

	r.track(conn, channel)

	sub := subscribedEvent{Channel: channel}
	if e.kind == KindPresence {
		sort.Slice(roster, func(i, j int) bool { return roster[i].UserID < roster[j].UserID })
		sub.Members = roster
		added := mustRaw(memberEvent{Channel: channel, Member: info})
		for _, other := range others {
			other.Deliver(Frame{Event: EventMemberAdded, Channel: channel, Data: added})
		}
	}
	conn.Deliver(Frame{Event: EventSubscribed, Channel: channel, Data: mustRaw(sub)})
	return nil
}

// Unsubscribe removes (conn, channel). No-op when the subscription does not
// exist. Empties garbage-collect the channel entry.
func (r *Registry) Unsubscribe(conn *Conn, channel string) {
	r.mu.RLock()
	e := r.channels[channel]
	r.mu.RUnlock()
	if e == nil {
		return
	}

	e.mu.Lock()
	info, exists := e.members[conn]
	if !exists {
		e.mu.Unlock()
		return
	}
	delete(e.members, conn)
	empty := len(e.members) == 0
	others := make([]*Conn, 0, len(e.members))
	for c := range e.members {
		others = append(others, c)
	}
	e.mu.Unlock()

	r.untrack(conn, channel)
	if empty {
		r.collect(channel)
	}

	if e.kind == KindPresence {
		removed := mustRaw(memberEvent{Channel: channel, Member: info})
		for _, other := range others {
			other.Deliver(Frame{Event: EventMemberLeft, Channel: channel, Data: removed})
		}
	}
}

// Members returns a consistent snapshot of the channel's subscribers.
// The snapshot is taken under the channel lock, so it is linearized with
// subscribe and unsubscribe: delivery sees exactly the set subscribed at the
// moment the snapshot is taken.
func (r *Registry) Members(channel string) []*Conn {
	r.mu.RLock()
	e := r.channels[channel]
	r.mu.RUnlock()
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	members := make([]*Conn, 0, len(e.members))
	for c := range e.members {
		members = append(members, c)
	}
	return members
}

// Channels returns the channel names the connection currently subscribes to.
func (r *Registry) Channels(conn *Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.conns[conn]))
	for name := range r.conns[conn] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RemoveConn removes every subscription held by the connection. Called by
// the connection manager on disconnect so no dangling subscription survives
// a connection.
func (r *Registry) RemoveConn(conn *Conn) {
	r.mu.Lock()
	channels := r.conns[conn]
	delete(r.conns, conn)
	r.mu.Unlock()

	for channel := range channels {
		r.removeFrom(conn, channel)
	}
}

// removeFrom is Unsubscribe without the per-conn bookkeeping, used when the
// bookkeeping has already been torn down wholesale.
func (r *Registry) removeFrom(conn *Conn, channel string) {
	r.mu.RLock()
	e := r.channels[channel]
	r.mu.RUnlock()
	if e == nil {
		return
	}

	e.mu.Lock()
	info, exists := e.members[conn]
	if !exists {
		e.mu.Unlock()
		return
	}
	delete(e.members, conn)
	empty := len(e.members) == 0
	others := make([]*Conn, 0, len(e.members))
	for c := range e.members {
		others = append(others, c)
	}
	e.mu.Unlock()

	if empty {
		r.collect(channel)
	}
	if e.kind == KindPresence {
		removed := mustRaw(memberEvent{Channel: channel, Member: info})
		for _, other := range others {
			other.Deliver(Frame{Event: EventMemberLeft, Channel: channel, Data: removed})
		}
	}
}

func (r *Registry) getOrCreate(channel string) *entry {
	r.mu.RLock()
	e := r.channels[channel]
	r.mu.RUnlock()
	if e != nil {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e = r.channels[channel]; e == nil {
		e = &entry{kind: KindOf(channel), members: make(map[*Conn]MemberInfo)}
		r.channels[channel] = e
	}
	return e
}

func (r *Registry) track(conn *Conn, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.conns[conn]
	if set == nil {
		set = make(map[string]struct{})
		r.conns[conn] = set
	}
	set[channel] = struct{}{}
}

func (r *Registry) untrack(conn *Conn, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set := r.conns[conn]; set != nil {
		delete(set, channel)
		if len(set) == 0 {
			delete(r.conns, conn)
		}
	}
}

// collect drops the channel entry if it is still empty. Re-checked under
// both locks because a subscriber may have raced in.
func (r *Registry) collect(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.channels[channel]
	if e == nil {
		return
	}
	e.mu.Lock()
	empty := len(e.members) == 0
	e.mu.Unlock()
	if empty {
		delete(r.channels, channel)
	}
}
