package handler

import (
	"context"
	"log/slog"

	"github.com/HMasataka/huddle/payload/signaling"
	"github.com/HMasataka/huddle/pkg/call"
	"github.com/HMasataka/logging"
	"github.com/sourcegraph/jsonrpc2"
)

func (h *Handler) JoinRoom(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request) {
	var args signaling.JoinRoomRequest
	if !h.decode(ctx, conn, request, &args) {
		return
	}

	res, err := h.session.Join(args.RoomID)
	if err != nil {
		h.replyError(ctx, conn, request, err)
		return
	}

	h.reply(ctx, conn, request, signaling.JoinRoomResponse{RoomID: args.RoomID, ActiveProducers: call.ProducerInfos(res.Producers)})

	// コンテキストにロガーが載っていない接続ではDebugに落とす
	level := slog.LevelDebug
	if logging.HasLoggingContext(ctx) {
		level = slog.LevelInfo
	}
	slog.Log(ctx, level, "room joined",
		slog.String("room_id", args.RoomID),
		slog.String("socket_id", string(h.session.MemberID())),
		slog.Int("active_producers", len(res.Producers)),
	)
}

func (h *Handler) LeaveRoom(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request) {
	var args signaling.LeaveRoomRequest
	if !h.decode(ctx, conn, request, &args) {
		return
	}

	if err := h.session.Leave(ctx, args.RoomID); err != nil {
		h.replyError(ctx, conn, request, err)
		return
	}

	h.reply(ctx, conn, request, signaling.OKResponse{OK: true})
}

func (h *Handler) GetRouterRtpCapabilities(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request) {
	var args signaling.GetRouterRtpCapabilitiesRequest
	if !h.decode(ctx, conn, request, &args) {
		return
	}

	caps, err := h.session.RouterRtpCapabilities(ctx, args.RoomID)
	if err != nil {
		h.replyError(ctx, conn, request, err)
		return
	}

	h.reply(ctx, conn, request, signaling.GetRouterRtpCapabilitiesResponse{RtpCapabilities: caps})
}
