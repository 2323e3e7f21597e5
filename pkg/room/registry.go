package room

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/HMasataka/huddle/internal/metrics"
	"github.com/bep/debounce"
	"github.com/samber/lo"
)

// Options configures a Registry.
type Options struct {
	// GracePeriod keeps an empty room alive before it is destroyed.
	// Zero destroys the room as soon as its last member leaves.
	GracePeriod time.Duration
}

/*
Registryはルーム、メンバー、トランスポート、プロデューサー、コンシューマーの唯一の状態源です。
ルームごとにロックを持ち、異なるルームの処理が互いをブロックしないようにします。
ロックの順序は常に Registry.mu -> roomState.mu です。
*/
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*roomState
	opts  Options
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		rooms: make(map[string]*roomState),
		opts:  opts,
	}
}

type memberEntry struct {
	Member
	notifier Notifier
}

type roomState struct {
	id string
	mu sync.RWMutex
	// closed is set once the room has been removed from the registry map.
	closed bool

	members    map[MemberID]*memberEntry
	transports map[string]*Transport
	producers  map[string]*Producer
	consumers  map[string]*Consumer

	reaper func(func())
}

func (r *Registry) newRoomState(id string) *roomState {
	rs := &roomState{
		id:         id,
		members:    make(map[MemberID]*memberEntry),
		transports: make(map[string]*Transport),
		producers:  make(map[string]*Producer),
		consumers:  make(map[string]*Consumer),
	}
	if r.opts.GracePeriod > 0 {
		rs.reaper = debounce.New(r.opts.GracePeriod)
	}
	return rs
}

func (r *Registry) room(id string) (*roomState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rs, ok := r.rooms[id]
	return rs, ok
}

func (r *Registry) getOrCreate(id string) (*roomState, bool) {
	if rs, ok := r.room(id); ok {
		return rs, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rs, ok := r.rooms[id]; ok {
		return rs, false
	}

	rs := r.newRoomState(id)
	r.rooms[id] = rs
	metrics.ActiveRooms.Inc()
	slog.Info("room created", slog.String("room_id", id))

	return rs, true
}

// Join adds the member to the room, creating the room on first use.
// Joining twice with the same MemberID is idempotent and returns the current state.
func (r *Registry) Join(roomID string, m Member, n Notifier) (JoinResult, error) {
	return r.JoinWith(roomID, m, n, nil)
}

// JoinWith is Join with a hook that runs inside the same critical section,
// so events it enqueues are ordered against every other change to the room.
func (r *Registry) JoinWith(roomID string, m Member, n Notifier, hook func(tx *Tx, res JoinResult)) (JoinResult, error) {
	if roomID == "" || m.ID == "" {
		return JoinResult{}, ErrValidation
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}

	for {
		rs, created := r.getOrCreate(roomID)

		rs.mu.Lock()
		if rs.closed {
			// reaped between lookup and lock; retry against a fresh room
			rs.mu.Unlock()
			continue
		}

		tx := &Tx{room: rs}
		res := JoinResult{Created: created}

		if _, ok := rs.members[m.ID]; ok {
			res.Existing = true
		} else {
			rs.members[m.ID] = &memberEntry{Member: m, notifier: n}
			metrics.ActiveMembers.Inc()
		}

		res.Producers = lo.Filter(tx.Producers(), func(p Producer, _ int) bool {
			return p.MemberID != m.ID
		})
		if hook != nil {
			hook(tx, res)
		}
		rs.mu.Unlock()

		return res, nil
	}
}

// Leave removes the member and everything it owns. Leaving a room one is not part of,
// or a room that does not exist, returns an empty result.
func (r *Registry) Leave(roomID string, id MemberID) (LeaveResult, error) {
	return r.LeaveWith(roomID, id, nil)
}

// LeaveWith is Leave with a hook that runs under the room lock after the cascade,
// only when the member was actually removed.
func (r *Registry) LeaveWith(roomID string, id MemberID, hook func(tx *Tx, res LeaveResult)) (LeaveResult, error) {
	rs, ok := r.room(roomID)
	if !ok {
		return LeaveResult{}, nil
	}

	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		return LeaveResult{}, nil
	}
	tx := &Tx{room: rs}
	res := tx.removeMember(id)
	if res.Removed && hook != nil {
		hook(tx, res)
	}
	empty := len(rs.members) == 0
	rs.mu.Unlock()

	if res.Removed && empty {
		r.scheduleReap(rs)
	}

	return res, nil
}

func (r *Registry) scheduleReap(rs *roomState) {
	if rs.reaper == nil {
		r.reap(rs.id)
		return
	}
	rs.reaper(func() {
		r.reap(rs.id)
	})
}

func (r *Registry) reap(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.rooms[id]
	if !ok {
		return
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.closed || len(rs.members) > 0 {
		return
	}

	rs.closed = true
	delete(r.rooms, id)
	metrics.ActiveRooms.Dec()
	slog.Info("room destroyed", slog.String("room_id", id))
}

func (r *Registry) IsMember(roomID string, id MemberID) bool {
	var ok bool
	_ = r.View(roomID, func(tx *Tx) error {
		_, ok = tx.Member(id)
		return nil
	})
	return ok
}

func (r *Registry) ListMembers(roomID string) ([]Member, error) {
	var members []Member
	err := r.View(roomID, func(tx *Tx) error {
		members = tx.Members()
		return nil
	})
	return members, err
}

// Update runs fn with exclusive access to the room. fn must validate before it mutates:
// a returned error does not roll back mutations already applied.
func (r *Registry) Update(roomID string, fn func(tx *Tx) error) error {
	rs, ok := r.room(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.closed {
		return ErrRoomNotFound
	}

	return fn(&Tx{room: rs})
}

// View runs fn against a consistent snapshot of the room. Mutations fail with ErrReadOnly.
func (r *Registry) View(roomID string, fn func(tx *Tx) error) error {
	rs, ok := r.room(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	rs.mu.RLock()
	defer rs.mu.RUnlock()

	if rs.closed {
		return ErrRoomNotFound
	}

	return fn(&Tx{room: rs, readOnly: true})
}

// Rooms returns the ids of all live rooms.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := lo.Keys(r.rooms)
	slices.Sort(ids)
	return ids
}
