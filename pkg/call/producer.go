package call

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/HMasataka/huddle/payload/signaling"
	"github.com/HMasataka/huddle/pkg/mediaserver"
	"github.com/HMasataka/huddle/pkg/retry"
	"github.com/HMasataka/huddle/pkg/room"
	"github.com/pion/webrtc/v4"
)

type ProduceRequest struct {
	RoomID        string
	MemberID      room.MemberID
	TransportID   string
	Kind          string
	RtpParameters json.RawMessage
	AppData       json.RawMessage
}

// ProducerLifecycleはメンバーが送信するメディアストリームの登録と削除を担当します。
type ProducerLifecycle struct {
	rooms   *room.Registry
	media   mediaserver.Gateway
	cleaner *mediaCleaner
}

// Produce registers a new stream and announces it to every other connection in the room.
// appData of type "screen" marks a screen-share producer.
func (l *ProducerLifecycle) Produce(ctx context.Context, req ProduceRequest) (string, error) {
	return l.produce(ctx, req, isScreenAppData(req.AppData))
}

func (l *ProducerLifecycle) produce(ctx context.Context, req ProduceRequest, screen bool) (string, error) {
	kind, err := normalizeKind(req.Kind)
	if err != nil {
		return "", err
	}

	err = l.rooms.View(req.RoomID, func(tx *room.Tx) error {
		return checkProducingTransport(tx, req.MemberID, req.TransportID)
	})
	if err != nil {
		return "", err
	}

	producerID, err := l.media.Produce(ctx, mediaserver.ProduceRequest{
		RoomID:        req.RoomID,
		TransportID:   req.TransportID,
		Kind:          kind,
		RtpParameters: req.RtpParameters,
		AppData:       req.AppData,
	})
	if err != nil {
		return "", err
	}

	err = l.rooms.Update(req.RoomID, func(tx *room.Tx) error {
		if screen {
			if _, ok := tx.ScreenProducerOf(req.MemberID); ok {
				return room.ErrInvalidState
			}
		}

		p := room.Producer{
			ID:          producerID,
			MemberID:    req.MemberID,
			TransportID: req.TransportID,
			Kind:        kind,
			Screen:      screen,
			AppData:     req.AppData,
			CreatedAt:   time.Now(),
		}
		if err := tx.AddProducer(p); err != nil {
			return err
		}

		added, _ := tx.Producer(producerID)
		tx.Broadcast(req.MemberID, signaling.EventNewProducer, newProducerEvent(added))

		return nil
	})
	if err != nil {
		// the media server already holds the producer; do not leave it orphaned
		l.cleaner.closeProducers(ctx, req.RoomID, []string{producerID})
		return "", err
	}

	slog.Info("producer created",
		slog.String("room_id", req.RoomID),
		slog.String("socket_id", string(req.MemberID)),
		slog.String("producer_id", producerID),
		slog.String("kind", kind),
		slog.Bool("screen", screen),
	)

	return producerID, nil
}

// Close stops one of the caller's producers. The media server is told first; if it fails the
// producer stays registered so the client can retry.
func (l *ProducerLifecycle) Close(ctx context.Context, roomID string, id room.MemberID, producerID string) error {
	return l.close(ctx, roomID, id, producerID, nil)
}

func (l *ProducerLifecycle) close(ctx context.Context, roomID string, id room.MemberID, producerID string, check func(p room.Producer) error) error {
	err := l.rooms.View(roomID, func(tx *room.Tx) error {
		if _, err := tx.RequireMember(id); err != nil {
			return err
		}
		p, ok := tx.Producer(producerID)
		if !ok {
			return room.ErrProducerNotFound
		}
		if p.MemberID != id {
			return room.ErrProducerForbidden
		}
		if check != nil {
			return check(p)
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = retry.Do(ctx, l.cleaner.retry, retryableRequestError, func(ctx context.Context, _ int) error {
		return l.media.CloseProducer(ctx, roomID, producerID)
	})
	if err != nil {
		return err
	}

	err = l.rooms.Update(roomID, func(tx *room.Tx) error {
		p, consumers, ok := tx.RemoveProducer(producerID)
		if !ok {
			// a concurrent leave or transport close already removed and announced it
			return nil
		}
		tx.Broadcast(id, signaling.EventProducerClosed, producerClosedEvent(p))

		slog.Info("producer closed",
			slog.String("room_id", roomID),
			slog.String("producer_id", producerID),
			slog.Int("consumers", len(consumers)),
		)
		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func checkProducingTransport(tx *room.Tx, id room.MemberID, transportID string) error {
	if _, err := tx.RequireMember(id); err != nil {
		return err
	}
	t, ok := tx.Transport(transportID)
	if !ok || t.MemberID != id {
		return room.ErrTransportNotFound
	}
	if !t.Producing {
		return room.ErrTransportNotProducing
	}
	if t.State != room.TransportConnected {
		return room.ErrTransportNotConnected
	}
	return nil
}

func normalizeKind(kind string) (string, error) {
	t := webrtc.NewRTPCodecType(kind)
	if t != webrtc.RTPCodecTypeAudio && t != webrtc.RTPCodecTypeVideo {
		return "", room.ErrValidation
	}
	return t.String(), nil
}

func isScreenAppData(appData json.RawMessage) bool {
	if len(appData) == 0 {
		return false
	}
	var v struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(appData, &v); err != nil {
		return false
	}
	return v.Type == signaling.AppDataTypeScreen
}
