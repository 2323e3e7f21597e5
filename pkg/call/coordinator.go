package call

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/HMasataka/huddle/internal/metrics"
	"github.com/HMasataka/huddle/payload/signaling"
	"github.com/HMasataka/huddle/pkg/mediaserver"
	"github.com/HMasataka/huddle/pkg/retry"
	"github.com/HMasataka/huddle/pkg/room"
	"github.com/gammazero/workerpool"
	"github.com/samber/lo"
)

type Options struct {
	// Retry applies only to idempotent media server calls.
	Retry retry.Config
	// CleanupWorkers bounds concurrent media server calls during a cascade.
	CleanupWorkers int
}

func DefaultOptions() Options {
	return Options{
		Retry:          retry.DefaultConfig(),
		CleanupWorkers: 4,
	}
}

// Coordinatorはルームの状態とメディアサーバーの間を取り持ちます。
// 各コンポーネントはRegistryを経由してのみ状態を参照します。
type Coordinator struct {
	rooms *room.Registry
	media mediaserver.Gateway
	opts  Options

	cleaner *mediaCleaner

	Transports  *TransportNegotiator
	Producers   *ProducerLifecycle
	Consumers   *ConsumerLifecycle
	ScreenShare *ScreenShareController
}

func NewCoordinator(rooms *room.Registry, media mediaserver.Gateway, opts Options) *Coordinator {
	if opts.CleanupWorkers < 1 {
		opts.CleanupWorkers = 1
	}

	cleaner := &mediaCleaner{media: media, retry: opts.Retry, workers: opts.CleanupWorkers}
	producers := &ProducerLifecycle{rooms: rooms, media: media, cleaner: cleaner}

	return &Coordinator{
		rooms:       rooms,
		media:       media,
		opts:        opts,
		cleaner:     cleaner,
		Transports:  &TransportNegotiator{rooms: rooms, media: media, cleaner: cleaner},
		Producers:   producers,
		Consumers:   &ConsumerLifecycle{rooms: rooms, media: media},
		ScreenShare: &ScreenShareController{rooms: rooms, producers: producers},
	}
}

func (c *Coordinator) Rooms() *room.Registry {
	return c.rooms
}

// Join adds the member, hands it the active producers and announces it to the room.
func (c *Coordinator) Join(roomID string, m room.Member, n room.Notifier) (room.JoinResult, error) {
	res, err := c.rooms.JoinWith(roomID, m, n, func(tx *room.Tx, res room.JoinResult) {
		tx.Notify(m.ID, signaling.EventActiveProducers, signaling.ActiveProducersEvent{
			RoomID:    roomID,
			Producers: ProducerInfos(res.Producers),
		})
		if res.Existing {
			return
		}
		tx.Broadcast(m.ID, signaling.EventUserJoined, signaling.UserJoinedEvent{
			RoomID:   roomID,
			UserID:   m.UserID,
			Name:     m.DisplayName,
			SocketID: string(m.ID),
		})
	})
	if err != nil {
		return room.JoinResult{}, err
	}

	slog.Info("member joined",
		slog.String("room_id", roomID),
		slog.String("socket_id", string(m.ID)),
		slog.String("user_id", m.UserID),
		slog.Bool("existing", res.Existing),
		slog.Int("active_producers", len(res.Producers)),
	)

	return res, nil
}

// Leave removes the member with everything it owns, announces the closed producers and the
// departure, then releases the media server resources. Cleanup failures are logged, not returned.
func (c *Coordinator) Leave(ctx context.Context, roomID string, id room.MemberID) (room.LeaveResult, error) {
	res, err := c.rooms.LeaveWith(roomID, id, func(tx *room.Tx, res room.LeaveResult) {
		broadcastProducersClosed(tx, id, res.Producers)
		tx.Broadcast(id, signaling.EventUserLeft, signaling.UserLeftEvent{
			RoomID:   roomID,
			UserID:   res.Member.UserID,
			SocketID: string(id),
		})
	})
	if err != nil || !res.Removed {
		return res, err
	}

	c.cleaner.closeProducers(ctx, roomID, res.ProducerIDs())
	c.cleaner.closeTransports(ctx, roomID, lo.Map(res.Transports, func(t room.Transport, _ int) string {
		return t.ID
	}))

	slog.Info("member left",
		slog.String("room_id", roomID),
		slog.String("socket_id", string(id)),
		slog.Int("transports", len(res.Transports)),
		slog.Int("producers", len(res.Producers)),
		slog.Int("consumers", len(res.Consumers)),
	)

	return res, nil
}

// RouterRtpCapabilities fetches the room router's capabilities for a member.
func (c *Coordinator) RouterRtpCapabilities(ctx context.Context, roomID string, id room.MemberID) (json.RawMessage, error) {
	if err := requireMember(c.rooms, roomID, id); err != nil {
		return nil, err
	}

	var caps json.RawMessage
	err := retry.Do(ctx, c.opts.Retry, retryableRequestError, func(ctx context.Context, _ int) error {
		var err error
		caps, err = c.media.GetRouterRtpCapabilities(ctx, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return caps, nil
}

func requireMember(rooms *room.Registry, roomID string, id room.MemberID) error {
	return rooms.View(roomID, func(tx *room.Tx) error {
		_, err := tx.RequireMember(id)
		return err
	})
}

func retryableMediaError(err error) bool {
	return errors.Is(err, mediaserver.ErrMediaServer)
}

// retryableRequestError is retryableMediaError for calls a client is waiting on.
// A timeout is final so the reply stays within the media server timeout.
func retryableRequestError(err error) bool {
	return retryableMediaError(err) && !errors.Is(err, mediaserver.ErrTimeout)
}

// mediaCleaner releases media server resources best-effort: each failure is logged and
// the remaining releases still run.
type mediaCleaner struct {
	media   mediaserver.Gateway
	retry   retry.Config
	workers int
}

func (m *mediaCleaner) closeProducers(ctx context.Context, roomID string, ids []string) {
	m.run(ctx, mediaserver.OpCloseProducer, roomID, ids, func(ctx context.Context, id string) error {
		return m.media.CloseProducer(ctx, roomID, id)
	})
}

func (m *mediaCleaner) closeTransports(ctx context.Context, roomID string, ids []string) {
	m.run(ctx, mediaserver.OpCloseTransport, roomID, ids, func(ctx context.Context, id string) error {
		return m.media.CloseTransport(ctx, roomID, id)
	})
}

func (m *mediaCleaner) run(ctx context.Context, op, roomID string, ids []string, fn func(ctx context.Context, id string) error) {
	if len(ids) == 0 {
		return
	}

	// cleanup must finish even when the requesting connection is gone
	ctx = context.WithoutCancel(ctx)

	wp := workerpool.New(m.workers)
	for _, id := range ids {
		wp.Submit(func() {
			err := retry.Do(ctx, m.retry, retryableMediaError, func(ctx context.Context, _ int) error {
				return fn(ctx, id)
			})
			if err != nil {
				metrics.CleanupFailuresTotal.WithLabelValues(op).Inc()
				slog.Warn("cleanup step failed",
					slog.String("operation", op),
					slog.String("room_id", roomID),
					slog.String("id", id),
					slog.String("error", err.Error()),
				)
			}
		})
	}
	wp.StopWait()
}
