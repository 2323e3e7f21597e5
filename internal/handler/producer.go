package handler

import (
	"context"

	"github.com/HMasataka/huddle/payload/signaling"
	"github.com/HMasataka/huddle/pkg/call"
	"github.com/sourcegraph/jsonrpc2"
)

func (h *Handler) Produce(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request) {
	var args signaling.ProduceRequest
	if !h.decode(ctx, conn, request, &args) {
		return
	}

	producerID, err := h.session.Produce(ctx, call.ProduceRequest{
		RoomID:        args.RoomID,
		TransportID:   args.TransportID,
		Kind:          args.Kind,
		RtpParameters: args.RtpParameters,
		AppData:       args.AppData,
	})
	if err != nil {
		h.replyError(ctx, conn, request, err)
		return
	}

	h.reply(ctx, conn, request, signaling.ProduceResponse{ProducerID: producerID})
}

func (h *Handler) Consume(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request) {
	var args signaling.ConsumeRequest
	if !h.decode(ctx, conn, request, &args) {
		return
	}

	opts, err := h.session.Consume(ctx, call.ConsumeRequest{
		RoomID:          args.RoomID,
		TransportID:     args.TransportID,
		ProducerID:      args.ProducerID,
		RtpCapabilities: args.RtpCapabilities,
	})
	if err != nil {
		h.replyError(ctx, conn, request, err)
		return
	}

	h.reply(ctx, conn, request, opts)
}

func (h *Handler) CloseProducer(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request) {
	var args signaling.CloseProducerRequest
	if !h.decode(ctx, conn, request, &args) {
		return
	}

	if err := h.session.CloseProducer(ctx, args.RoomID, args.ProducerID); err != nil {
		h.replyError(ctx, conn, request, err)
		return
	}

	h.reply(ctx, conn, request, signaling.OKResponse{OK: true})
}

func (h *Handler) StartScreenShare(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request) {
	var args signaling.StartScreenShareRequest
	if !h.decode(ctx, conn, request, &args) {
		return
	}

	producerID, err := h.session.StartScreenShare(ctx, call.StartScreenShareRequest{
		RoomID:        args.RoomID,
		TransportID:   args.TransportID,
		RtpParameters: args.RtpParameters,
		AppData:       args.AppData,
	})
	if err != nil {
		h.replyError(ctx, conn, request, err)
		return
	}

	h.reply(ctx, conn, request, signaling.ProduceResponse{ProducerID: producerID})
}

func (h *Handler) StopScreenShare(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request) {
	var args signaling.StopScreenShareRequest
	if !h.decode(ctx, conn, request, &args) {
		return
	}

	if err := h.session.StopScreenShare(ctx, args.RoomID, args.ProducerID); err != nil {
		h.replyError(ctx, conn, request, err)
		return
	}

	h.reply(ctx, conn, request, signaling.OKResponse{OK: true})
}
