package call

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/HMasataka/huddle/pkg/mediaserver"
	"github.com/HMasataka/huddle/pkg/room"
	"github.com/samber/lo"
)

type TransportRequest struct {
	Producing        bool
	Consuming        bool
	SctpCapabilities json.RawMessage
}

// TransportNegotiatorはWebRTCトランスポートの作成と一度きりのDTLS接続を管理します。
type TransportNegotiator struct {
	rooms   *room.Registry
	media   mediaserver.Gateway
	cleaner *mediaCleaner
}

// Create asks the media server for a transport and registers it as created.
// When the member left while the media server was working, the new transport is closed again.
func (n *TransportNegotiator) Create(ctx context.Context, roomID string, id room.MemberID, req TransportRequest) (*mediaserver.TransportOptions, error) {
	if !req.Producing && !req.Consuming {
		return nil, room.ErrValidation
	}
	if err := requireMember(n.rooms, roomID, id); err != nil {
		return nil, err
	}

	opts, err := n.media.CreateTransport(ctx, mediaserver.CreateTransportRequest{
		RoomID:           roomID,
		Producing:        req.Producing,
		Consuming:        req.Consuming,
		SctpCapabilities: req.SctpCapabilities,
	})
	if err != nil {
		return nil, err
	}

	err = n.rooms.Update(roomID, func(tx *room.Tx) error {
		return tx.AddTransport(room.Transport{
			ID:        opts.ID,
			MemberID:  id,
			Producing: req.Producing,
			Consuming: req.Consuming,
			State:     room.TransportCreated,
			CreatedAt: time.Now(),
		})
	})
	if err != nil {
		n.cleaner.closeTransports(ctx, roomID, []string{opts.ID})
		return nil, err
	}

	slog.Info("transport created",
		slog.String("room_id", roomID),
		slog.String("socket_id", string(id)),
		slog.String("transport_id", opts.ID),
		slog.Bool("producing", req.Producing),
		slog.Bool("consuming", req.Consuming),
	)

	return opts, nil
}

// Connect performs the DTLS handshake at most once per transport. A failed handshake leaves
// the transport failed; the client closes it and creates a new one.
func (n *TransportNegotiator) Connect(ctx context.Context, roomID string, id room.MemberID, transportID string, dtlsParameters json.RawMessage) error {
	err := n.rooms.Update(roomID, func(tx *room.Tx) error {
		if _, err := tx.RequireMember(id); err != nil {
			return err
		}
		t, ok := tx.Transport(transportID)
		if !ok || t.MemberID != id {
			return room.ErrTransportForbidden
		}

		switch t.State {
		case room.TransportConnected:
			return room.ErrAlreadyConnected
		case room.TransportConnecting:
			return room.ErrTransportConnecting
		case room.TransportFailed:
			return room.ErrTransportFailed
		case room.TransportClosed:
			return room.ErrTransportClosed
		}

		return tx.SetTransportState(transportID, room.TransportConnecting)
	})
	if err != nil {
		return err
	}

	connectErr := n.media.ConnectTransport(ctx, mediaserver.ConnectTransportRequest{
		RoomID:         roomID,
		TransportID:    transportID,
		DtlsParameters: dtlsParameters,
	})

	next := room.TransportConnected
	if connectErr != nil {
		next = room.TransportFailed
	}

	err = n.rooms.Update(roomID, func(tx *room.Tx) error {
		if _, ok := tx.Transport(transportID); !ok {
			return room.ErrTransportClosed
		}
		return tx.SetTransportState(transportID, next)
	})
	if errors.Is(err, room.ErrNotFound) {
		// the member left while connecting; the leave cascade owns the cleanup
		err = room.ErrTransportClosed
	}
	if connectErr != nil {
		slog.Warn("transport connect failed",
			slog.String("room_id", roomID),
			slog.String("transport_id", transportID),
			slog.String("error", connectErr.Error()),
		)
		return connectErr
	}
	if err != nil {
		return err
	}

	slog.Info("transport connected", slog.String("room_id", roomID), slog.String("transport_id", transportID))

	return nil
}

// Close removes the transport with its producers and consumers and tells the room which
// producers went away. Media server cleanup is best-effort.
func (n *TransportNegotiator) Close(ctx context.Context, roomID string, id room.MemberID, transportID string) error {
	var producers []room.Producer

	err := n.rooms.Update(roomID, func(tx *room.Tx) error {
		if _, err := tx.RequireMember(id); err != nil {
			return err
		}
		t, ok := tx.Transport(transportID)
		if !ok || t.MemberID != id {
			return room.ErrTransportForbidden
		}

		_, producers, _, _ = tx.RemoveTransport(transportID)
		broadcastProducersClosed(tx, id, producers)

		return nil
	})
	if err != nil {
		return err
	}

	n.cleaner.closeProducers(ctx, roomID, producerIDs(producers))
	n.cleaner.closeTransports(ctx, roomID, []string{transportID})

	slog.Info("transport closed",
		slog.String("room_id", roomID),
		slog.String("transport_id", transportID),
		slog.Int("producers", len(producers)),
	)

	return nil
}

func producerIDs(ps []room.Producer) []string {
	return lo.Map(ps, func(p room.Producer, _ int) string { return p.ID })
}
