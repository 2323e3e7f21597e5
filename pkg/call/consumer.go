package call

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/HMasataka/huddle/pkg/mediaserver"
	"github.com/HMasataka/huddle/pkg/room"
	"golang.org/x/sync/singleflight"
)

type ConsumeRequest struct {
	RoomID          string
	MemberID        room.MemberID
	TransportID     string
	ProducerID      string
	RtpCapabilities json.RawMessage
}

// ConsumerLifecycle subscribes members to producers. Consumers are never removed directly;
// they go away with their producer, their transport or their member.
type ConsumerLifecycle struct {
	rooms  *room.Registry
	media  mediaserver.Gateway
	flight singleflight.Group
}

// Consume returns the consumer options for (member, producer), creating the consumer on first use.
func (l *ConsumerLifecycle) Consume(ctx context.Context, req ConsumeRequest) (*mediaserver.ConsumerOptions, error) {
	key := strings.Join([]string{req.RoomID, string(req.MemberID), req.ProducerID}, "/")

	v, err, _ := l.flight.Do(key, func() (any, error) {
		return l.consume(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	return v.(*mediaserver.ConsumerOptions), nil
}

func (l *ConsumerLifecycle) consume(ctx context.Context, req ConsumeRequest) (*mediaserver.ConsumerOptions, error) {
	var (
		member   room.Member
		existing *room.Consumer
	)

	err := l.rooms.View(req.RoomID, func(tx *room.Tx) error {
		m, err := tx.RequireMember(req.MemberID)
		if err != nil {
			return err
		}
		member = m

		if _, ok := tx.Producer(req.ProducerID); !ok {
			return room.ErrProducerNotFound
		}
		if c, ok := tx.ConsumerFor(req.MemberID, req.ProducerID); ok {
			existing = &c
			return nil
		}

		t, ok := tx.Transport(req.TransportID)
		if !ok || t.MemberID != req.MemberID {
			return room.ErrTransportNotFound
		}
		if !t.Consuming {
			return room.ErrTransportNotConsuming
		}
		if t.State == room.TransportClosed {
			return room.ErrTransportClosed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return consumerOptions(*existing)
	}

	opts, err := l.media.Consume(ctx, mediaserver.ConsumeRequest{
		RoomID:          req.RoomID,
		TransportID:     req.TransportID,
		ProducerID:      req.ProducerID,
		RtpCapabilities: req.RtpCapabilities,
		ConsumingUserID: member.UserID,
	})
	if err != nil {
		return nil, err
	}

	err = l.rooms.Update(req.RoomID, func(tx *room.Tx) error {
		err := tx.AddConsumer(room.Consumer{
			ID:          opts.ID,
			MemberID:    req.MemberID,
			ProducerID:  req.ProducerID,
			TransportID: req.TransportID,
			Options:     opts.Raw,
		})
		if errors.Is(err, room.ErrDuplicateConsumer) {
			c, _ := tx.ConsumerFor(req.MemberID, req.ProducerID)
			existing = &c
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return consumerOptions(*existing)
	}

	slog.Info("consumer created",
		slog.String("room_id", req.RoomID),
		slog.String("socket_id", string(req.MemberID)),
		slog.String("producer_id", req.ProducerID),
		slog.String("consumer_id", opts.ID),
	)

	return opts, nil
}

func consumerOptions(c room.Consumer) (*mediaserver.ConsumerOptions, error) {
	var opts mediaserver.ConsumerOptions
	if err := json.Unmarshal(c.Options, &opts); err != nil {
		return nil, err
	}
	return &opts, nil
}
