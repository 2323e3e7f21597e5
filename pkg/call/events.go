package call

import (
	"github.com/HMasataka/huddle/payload/signaling"
	"github.com/HMasataka/huddle/pkg/room"
	"github.com/samber/lo"
)

func producerInfo(p room.Producer) signaling.ProducerInfo {
	return signaling.ProducerInfo{
		ProducerID: p.ID,
		UserID:     p.UserID,
		SocketID:   string(p.MemberID),
		Kind:       p.Kind,
		AppData:    p.AppData,
	}
}

// ProducerInfos converts producer records into their wire form.
func ProducerInfos(ps []room.Producer) []signaling.ProducerInfo {
	return lo.Map(ps, func(p room.Producer, _ int) signaling.ProducerInfo {
		return producerInfo(p)
	})
}

func newProducerEvent(p room.Producer) signaling.NewProducerEvent {
	return signaling.NewProducerEvent{
		RoomID:     p.RoomID,
		ProducerID: p.ID,
		UserID:     p.UserID,
		Kind:       p.Kind,
		AppData:    p.AppData,
		SocketID:   string(p.MemberID),
	}
}

func producerClosedEvent(p room.Producer) signaling.ProducerClosedEvent {
	return signaling.ProducerClosedEvent{
		RoomID:     p.RoomID,
		ProducerID: p.ID,
		UserID:     p.UserID,
		SocketID:   string(p.MemberID),
	}
}

func broadcastProducersClosed(tx *room.Tx, except room.MemberID, ps []room.Producer) {
	for _, p := range ps {
		tx.Broadcast(except, signaling.EventProducerClosed, producerClosedEvent(p))
	}
}
