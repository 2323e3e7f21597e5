package handler

import (
	"context"

	"github.com/HMasataka/huddle/payload/signaling"
	"github.com/HMasataka/huddle/pkg/call"
	"github.com/sourcegraph/jsonrpc2"
)

func (h *Handler) CreateWebRtcTransport(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request) {
	var args signaling.CreateWebRtcTransportRequest
	if !h.decode(ctx, conn, request, &args) {
		return
	}

	opts, err := h.session.CreateTransport(ctx, args.RoomID, call.TransportRequest{
		Producing:        args.Producing,
		Consuming:        args.Consuming,
		SctpCapabilities: args.SctpCapabilities,
	})
	if err != nil {
		h.replyError(ctx, conn, request, err)
		return
	}

	h.reply(ctx, conn, request, opts)
}

func (h *Handler) ConnectWebRtcTransport(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request) {
	var args signaling.ConnectWebRtcTransportRequest
	if !h.decode(ctx, conn, request, &args) {
		return
	}

	if err := h.session.ConnectTransport(ctx, args.RoomID, args.TransportID, args.DtlsParameters); err != nil {
		h.replyError(ctx, conn, request, err)
		return
	}

	h.reply(ctx, conn, request, signaling.OKResponse{OK: true})
}

func (h *Handler) CloseWebRtcTransport(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request) {
	var args signaling.CloseWebRtcTransportRequest
	if !h.decode(ctx, conn, request, &args) {
		return
	}

	if err := h.session.CloseTransport(ctx, args.RoomID, args.TransportID); err != nil {
		h.replyError(ctx, conn, request, err)
		return
	}

	h.reply(ctx, conn, request, signaling.OKResponse{OK: true})
}
