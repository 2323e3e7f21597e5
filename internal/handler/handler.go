package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/HMasataka/huddle/internal/metrics"
	"github.com/HMasataka/huddle/payload/signaling"
	"github.com/HMasataka/huddle/pkg/call"
	"github.com/HMasataka/huddle/pkg/room"
	"github.com/go-playground/validator/v10"
	"github.com/sourcegraph/jsonrpc2"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func NewHandler(session *call.Session, events room.Notifier) *Handler {
	return &Handler{
		session: session,
		events:  events,
	}
}

// Handler dispatches one connection's JSON-RPC requests to its session.
type Handler struct {
	session *call.Session
	// events receives error notifications for failed requests that carry no id.
	events room.Notifier
}

func (h *Handler) Handle(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request) {
	switch request.Method {
	case signaling.MethodJoinRoom:
		h.JoinRoom(ctx, conn, request)
	case signaling.MethodLeaveRoom:
		h.LeaveRoom(ctx, conn, request)
	case signaling.MethodGetRouterRtpCapabilities:
		h.GetRouterRtpCapabilities(ctx, conn, request)
	case signaling.MethodCreateWebRtcTransport:
		h.CreateWebRtcTransport(ctx, conn, request)
	case signaling.MethodConnectWebRtcTransport:
		h.ConnectWebRtcTransport(ctx, conn, request)
	case signaling.MethodCloseWebRtcTransport:
		h.CloseWebRtcTransport(ctx, conn, request)
	case signaling.MethodProduce:
		h.Produce(ctx, conn, request)
	case signaling.MethodConsume:
		h.Consume(ctx, conn, request)
	case signaling.MethodCloseProducer:
		h.CloseProducer(ctx, conn, request)
	case signaling.MethodStartScreenShare:
		h.StartScreenShare(ctx, conn, request)
	case signaling.MethodStopScreenShare:
		h.StopScreenShare(ctx, conn, request)
	default:
		slog.Warn("unknown method", slog.String("method", request.Method))
		h.send(ctx, conn, request, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not found: " + request.Method}, "MethodNotFound")
	}
}

// decode unmarshals and validates the params into v, replying with a ValidationError on failure.
func (h *Handler) decode(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request, v any) bool {
	params := json.RawMessage("{}")
	if request.Params != nil {
		params = *request.Params
	}

	if err := json.Unmarshal(params, v); err != nil {
		h.replyError(ctx, conn, request, fmt.Errorf("%w: invalid params: %v", room.ErrValidation, err))
		return false
	}
	if err := validate.Struct(v); err != nil {
		h.replyError(ctx, conn, request, fmt.Errorf("%w: %v", room.ErrValidation, err))
		return false
	}

	return true
}

func (h *Handler) reply(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request, result any) {
	metrics.SignalingRequestsTotal.WithLabelValues(request.Method, "ok").Inc()

	if request.Notif {
		return
	}
	if err := conn.Reply(ctx, request.ID, result); err != nil {
		slog.Error("failed to send reply", slog.String("method", request.Method), slog.String("error", err.Error()))
	}
}

func (h *Handler) replyError(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request, err error) {
	rpcErr, name := toRPCError(err)
	if rpcErr.Code == signaling.CodeInternal {
		slog.Error("request failed", slog.String("method", request.Method), slog.String("error", err.Error()))
	}
	h.send(ctx, conn, request, rpcErr, name)
}

func (h *Handler) send(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request, rpcErr *jsonrpc2.Error, name string) {
	metrics.SignalingRequestsTotal.WithLabelValues(request.Method, name).Inc()

	// notifications have no id to answer; the error goes out as an event instead
	if request.Notif {
		h.events.Notify(signaling.EventError, signaling.ErrorEvent{Message: rpcErr.Message, Code: name})
		return
	}
	if replyErr := conn.ReplyWithError(ctx, request.ID, rpcErr); replyErr != nil {
		slog.Error("failed to send error reply", slog.String("method", request.Method), slog.String("error", replyErr.Error()))
	}
}
