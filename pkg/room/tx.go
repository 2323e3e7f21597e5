package room

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/HMasataka/huddle/internal/metrics"
	"github.com/samber/lo"
)

// Tx is a handle on one room's state, valid only inside Registry.Update or Registry.View.
// Every accessor returns copies so callers never hold references into the registry.
type Tx struct {
	room     *roomState
	readOnly bool
}

func (tx *Tx) RoomID() string {
	return tx.room.id
}

func (tx *Tx) Member(id MemberID) (Member, bool) {
	e, ok := tx.room.members[id]
	if !ok {
		return Member{}, false
	}
	return e.Member, true
}

// RequireMember returns ErrNotMember unless id is a current member.
func (tx *Tx) RequireMember(id MemberID) (Member, error) {
	m, ok := tx.Member(id)
	if !ok {
		return Member{}, ErrNotMember
	}
	return m, nil
}

func (tx *Tx) Members() []Member {
	members := lo.MapToSlice(tx.room.members, func(_ MemberID, e *memberEntry) Member {
		return e.Member
	})
	slices.SortFunc(members, func(a, b Member) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return members
}

func (tx *Tx) Transport(id string) (Transport, bool) {
	t, ok := tx.room.transports[id]
	if !ok {
		return Transport{}, false
	}
	return *t, true
}

func (tx *Tx) TransportsOf(id MemberID) []Transport {
	out := make([]Transport, 0)
	for _, t := range tx.room.transports {
		if t.MemberID == id {
			out = append(out, *t)
		}
	}
	slices.SortFunc(out, func(a, b Transport) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (tx *Tx) AddTransport(t Transport) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	if t.ID == "" || (!t.Producing && !t.Consuming) {
		return ErrValidation
	}
	if _, ok := tx.room.members[t.MemberID]; !ok {
		return ErrNotMember
	}
	if _, ok := tx.room.transports[t.ID]; ok {
		return ErrInvalidState
	}

	t.RoomID = tx.room.id
	tx.room.transports[t.ID] = &t
	metrics.ActiveTransports.Inc()

	return nil
}

func (tx *Tx) SetTransportState(id string, state TransportState) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	t, ok := tx.room.transports[id]
	if !ok {
		return ErrTransportNotFound
	}
	t.State = state
	return nil
}

// RemoveTransport closes the transport together with the producers and consumers bound to it.
func (tx *Tx) RemoveTransport(id string) (Transport, []Producer, []Consumer, bool) {
	if tx.readOnly {
		return Transport{}, nil, nil, false
	}
	t, ok := tx.room.transports[id]
	if !ok {
		return Transport{}, nil, nil, false
	}

	var producers []Producer
	var consumers []Consumer

	for _, p := range tx.producersWhere(func(p *Producer) bool { return p.TransportID == id }) {
		removed, cs, _ := tx.RemoveProducer(p.ID)
		producers = append(producers, removed)
		consumers = append(consumers, cs...)
	}
	for _, c := range tx.consumersWhere(func(c *Consumer) bool { return c.TransportID == id }) {
		consumers = append(consumers, tx.removeConsumer(c.ID))
	}

	delete(tx.room.transports, id)
	metrics.ActiveTransports.Dec()

	closed := *t
	closed.State = TransportClosed

	return closed, producers, consumers, true
}

func (tx *Tx) Producer(id string) (Producer, bool) {
	p, ok := tx.room.producers[id]
	if !ok {
		return Producer{}, false
	}
	return *p, true
}

// Producers returns every active producer in the room.
func (tx *Tx) Producers() []Producer {
	return tx.producersWhere(func(*Producer) bool { return true })
}

func (tx *Tx) ProducersOf(id MemberID) []Producer {
	return tx.producersWhere(func(p *Producer) bool { return p.MemberID == id })
}

// ScreenProducerOf returns the member's active screen-share producer, if any.
func (tx *Tx) ScreenProducerOf(id MemberID) (Producer, bool) {
	return lo.Find(tx.ProducersOf(id), func(p Producer) bool { return p.Screen })
}

// AddProducer registers a producer on one of the member's connected producing transports.
func (tx *Tx) AddProducer(p Producer) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	if p.ID == "" {
		return ErrValidation
	}
	m, ok := tx.room.members[p.MemberID]
	if !ok {
		return ErrNotMember
	}
	t, ok := tx.room.transports[p.TransportID]
	if !ok || t.MemberID != p.MemberID {
		return ErrTransportNotFound
	}
	if !t.Producing {
		return ErrTransportNotProducing
	}
	if t.State != TransportConnected {
		return ErrTransportNotConnected
	}
	if _, ok := tx.room.producers[p.ID]; ok {
		return ErrInvalidState
	}

	p.RoomID = tx.room.id
	p.UserID = m.UserID
	tx.room.producers[p.ID] = &p
	metrics.ActiveProducers.WithLabelValues(metrics.ProducerLabel(p.Kind, p.Screen)).Inc()

	return nil
}

// RemoveProducer removes the producer and every consumer subscribed to it.
func (tx *Tx) RemoveProducer(id string) (Producer, []Consumer, bool) {
	if tx.readOnly {
		return Producer{}, nil, false
	}
	p, ok := tx.room.producers[id]
	if !ok {
		return Producer{}, nil, false
	}

	var consumers []Consumer
	for _, c := range tx.consumersWhere(func(c *Consumer) bool { return c.ProducerID == id }) {
		consumers = append(consumers, tx.removeConsumer(c.ID))
	}

	delete(tx.room.producers, id)
	metrics.ActiveProducers.WithLabelValues(metrics.ProducerLabel(p.Kind, p.Screen)).Dec()

	return *p, consumers, true
}

// ConsumerFor returns the live consumer the member holds for the producer, if any.
func (tx *Tx) ConsumerFor(id MemberID, producerID string) (Consumer, bool) {
	for _, c := range tx.room.consumers {
		if c.MemberID == id && c.ProducerID == producerID {
			return *c, true
		}
	}
	return Consumer{}, false
}

func (tx *Tx) ConsumersOf(id MemberID) []Consumer {
	return tx.consumersWhere(func(c *Consumer) bool { return c.MemberID == id })
}

// AddConsumer registers a subscription; at most one per (member, producer).
func (tx *Tx) AddConsumer(c Consumer) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	if c.ID == "" || c.ProducerID == "" {
		return ErrValidation
	}
	if _, ok := tx.room.members[c.MemberID]; !ok {
		return ErrNotMember
	}
	t, ok := tx.room.transports[c.TransportID]
	if !ok || t.MemberID != c.MemberID {
		return ErrTransportNotFound
	}
	if !t.Consuming {
		return ErrTransportNotConsuming
	}
	if _, ok := tx.room.producers[c.ProducerID]; !ok {
		return ErrProducerNotFound
	}
	if _, ok := tx.ConsumerFor(c.MemberID, c.ProducerID); ok {
		return ErrDuplicateConsumer
	}
	if _, ok := tx.room.consumers[c.ID]; ok {
		return ErrInvalidState
	}

	c.RoomID = tx.room.id
	tx.room.consumers[c.ID] = &c
	metrics.ActiveConsumers.Inc()

	return nil
}

// Broadcast enqueues an event for every member except one and returns the recipient count.
// Recipients observe events in the order they were enqueued under the room lock.
// Inside View nothing is sent.
func (tx *Tx) Broadcast(except MemberID, method string, params any) int {
	if tx.readOnly {
		return 0
	}
	n := 0
	for id, e := range tx.room.members {
		if id == except || e.notifier == nil {
			continue
		}
		e.notifier.Notify(method, params)
		n++
	}
	if n > 0 {
		slog.Debug("room broadcast", slog.String("room_id", tx.room.id), slog.String("method", method), slog.Int("recipients", n))
	}
	return n
}

// Notify enqueues an event for a single member.
func (tx *Tx) Notify(id MemberID, method string, params any) bool {
	if tx.readOnly {
		return false
	}
	e, ok := tx.room.members[id]
	if !ok || e.notifier == nil {
		return false
	}
	e.notifier.Notify(method, params)
	return true
}

func (tx *Tx) removeMember(id MemberID) LeaveResult {
	e, ok := tx.room.members[id]
	if !ok {
		return LeaveResult{}
	}

	res := LeaveResult{Member: e.Member, Removed: true}

	for _, t := range tx.TransportsOf(id) {
		closed, ps, cs, _ := tx.RemoveTransport(t.ID)
		res.Transports = append(res.Transports, closed)
		res.Producers = append(res.Producers, ps...)
		res.Consumers = append(res.Consumers, cs...)
	}
	// nothing should remain, but a record bound to a foreign transport must still go
	for _, p := range tx.ProducersOf(id) {
		removed, cs, _ := tx.RemoveProducer(p.ID)
		res.Producers = append(res.Producers, removed)
		res.Consumers = append(res.Consumers, cs...)
	}
	for _, c := range tx.ConsumersOf(id) {
		res.Consumers = append(res.Consumers, tx.removeConsumer(c.ID))
	}

	delete(tx.room.members, id)
	metrics.ActiveMembers.Dec()

	return res
}

func (tx *Tx) removeConsumer(id string) Consumer {
	c := tx.room.consumers[id]
	delete(tx.room.consumers, id)
	metrics.ActiveConsumers.Dec()
	return *c
}

func (tx *Tx) producersWhere(pred func(*Producer) bool) []Producer {
	out := make([]Producer, 0)
	for _, p := range tx.room.producers {
		if pred(p) {
			out = append(out, *p)
		}
	}
	slices.SortFunc(out, func(a, b Producer) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (tx *Tx) consumersWhere(pred func(*Consumer) bool) []Consumer {
	out := make([]Consumer, 0)
	for _, c := range tx.room.consumers {
		if pred(c) {
			out = append(out, *c)
		}
	}
	slices.SortFunc(out, func(a, b Consumer) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
