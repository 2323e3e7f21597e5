package call

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/HMasataka/huddle/payload/signaling"
	"github.com/HMasataka/huddle/pkg/room"
)

type StartScreenShareRequest struct {
	RoomID        string
	MemberID      room.MemberID
	TransportID   string
	RtpParameters json.RawMessage
	AppData       json.RawMessage
}

// ScreenShareControllerは1メンバーあたり1つの画面共有プロデューサーを保証します。
type ScreenShareController struct {
	rooms     *room.Registry
	producers *ProducerLifecycle
}

// Start replaces the member's current screen share, if any, with a new video producer.
func (c *ScreenShareController) Start(ctx context.Context, req StartScreenShareRequest) (string, error) {
	appData, err := screenAppData(req.AppData)
	if err != nil {
		return "", err
	}

	var current string
	err = c.rooms.View(req.RoomID, func(tx *room.Tx) error {
		if err := checkProducingTransport(tx, req.MemberID, req.TransportID); err != nil {
			return err
		}
		if p, ok := tx.ScreenProducerOf(req.MemberID); ok {
			current = p.ID
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if current != "" {
		slog.Info("replacing screen share", slog.String("room_id", req.RoomID), slog.String("producer_id", current))
		if err := c.producers.Close(ctx, req.RoomID, req.MemberID, current); err != nil {
			return "", err
		}
	}

	return c.producers.produce(ctx, ProduceRequest{
		RoomID:        req.RoomID,
		MemberID:      req.MemberID,
		TransportID:   req.TransportID,
		Kind:          "video",
		RtpParameters: req.RtpParameters,
		AppData:       appData,
	}, true)
}

// Stop closes a screen-share producer. Other producers are rejected with ErrInvalidState.
func (c *ScreenShareController) Stop(ctx context.Context, roomID string, id room.MemberID, producerID string) error {
	return c.producers.close(ctx, roomID, id, producerID, func(p room.Producer) error {
		if !p.Screen {
			return room.ErrInvalidState
		}
		return nil
	})
}

// screenAppData returns appData with type set to "screen", keeping any other keys.
func screenAppData(appData json.RawMessage) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(appData) > 0 && string(appData) != "null" {
		if err := json.Unmarshal(appData, &fields); err != nil {
			return nil, room.ErrValidation
		}
	}

	typ, err := json.Marshal(signaling.AppDataTypeScreen)
	if err != nil {
		return nil, err
	}
	fields["type"] = typ

	return json.Marshal(fields)
}
