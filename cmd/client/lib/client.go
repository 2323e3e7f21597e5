package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/HMasataka/huddle/payload/signaling"
	ws "github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	jsonrpc2ws "github.com/sourcegraph/jsonrpc2/websocket"
)

// EventFunc receives every server notification.
type EventFunc func(method string, params json.RawMessage)

type Client struct {
	conn *jsonrpc2.Conn
}

type eventHandler struct {
	onEvent EventFunc
}

func (h *eventHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request) {
	if !request.Notif || h.onEvent == nil {
		return
	}

	var params json.RawMessage
	if request.Params != nil {
		params = *request.Params
	}
	h.onEvent(request.Method, params)
}

// Dial opens a signaling connection as userID. The identity travels in the query string,
// the same fallback the server accepts when no auth proxy is in front of it.
func Dial(ctx context.Context, serverURL, userID, name string, onEvent EventFunc) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	q := u.Query()
	q.Set("userId", userID)
	if name != "" {
		q.Set("name", name)
	}
	u.RawQuery = q.Encode()

	wsConn, resp, err := ws.DefaultDialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	conn := jsonrpc2.NewConn(ctx, jsonrpc2ws.NewObjectStream(wsConn), &eventHandler{onEvent: onEvent})

	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Done is closed when the server hangs up.
func (c *Client) Done() <-chan struct{} {
	return c.conn.DisconnectNotify()
}

func (c *Client) JoinRoom(ctx context.Context, roomID string) (*signaling.JoinRoomResponse, error) {
	var resp signaling.JoinRoomResponse
	if err := c.conn.Call(ctx, signaling.MethodJoinRoom, signaling.JoinRoomRequest{RoomID: roomID}, &resp); err != nil {
		return nil, fmt.Errorf("joinRoom failed: %w", err)
	}
	return &resp, nil
}

func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	var resp signaling.OKResponse
	if err := c.conn.Call(ctx, signaling.MethodLeaveRoom, signaling.LeaveRoomRequest{RoomID: roomID}, &resp); err != nil {
		return fmt.Errorf("leaveRoom failed: %w", err)
	}
	return nil
}

func (c *Client) GetRouterRtpCapabilities(ctx context.Context, roomID string) (json.RawMessage, error) {
	var resp signaling.GetRouterRtpCapabilitiesResponse
	if err := c.conn.Call(ctx, signaling.MethodGetRouterRtpCapabilities, signaling.GetRouterRtpCapabilitiesRequest{RoomID: roomID}, &resp); err != nil {
		return nil, fmt.Errorf("getRouterRtpCapabilities failed: %w", err)
	}
	return resp.RtpCapabilities, nil
}
