package signaling_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HMasataka/huddle/internal/signaling"
	payload "github.com/HMasataka/huddle/payload/signaling"
	"github.com/HMasataka/huddle/pkg/call"
	"github.com/HMasataka/huddle/pkg/mediaserver"
	mock_mediaserver "github.com/HMasataka/huddle/pkg/mediaserver/mock"
	"github.com/HMasataka/huddle/pkg/retry"
	"github.com/HMasataka/huddle/pkg/room"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type received struct {
	method string
	params json.RawMessage
}

// peer is the client end of one signaling connection.
type peer struct {
	conn *jsonrpc2.Conn
	done chan struct{}

	mu     sync.Mutex
	events []received
}

func (p *peer) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if !req.Notif {
		return
	}
	var params json.RawMessage
	if req.Params != nil {
		params = *req.Params
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, received{method: req.Method, params: params})
}

func (p *peer) methods() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.method)
	}
	return out
}

func (p *peer) has(method string) bool {
	for _, m := range p.methods() {
		if m == method {
			return true
		}
	}
	return false
}

func (p *peer) last(t *testing.T, method string, v any) {
	t.Helper()

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].method == method {
			require.NoError(t, json.Unmarshal(p.events[i].params, v))
			return
		}
	}
	t.Fatalf("no %s event received", method)
}

func (p *peer) call(t *testing.T, method string, params, result any) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.conn.Call(ctx, method, params, result)
}

// disconnect closes the client side and waits for the server cleanup to finish.
func (p *peer) disconnect(t *testing.T) {
	t.Helper()

	p.conn.Close()
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not finish the session")
	}
}

type harness struct {
	media *mock_mediaserver.MockGateway
	rooms *room.Registry
	srv   *signaling.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctrl := gomock.NewController(t)
	media := mock_mediaserver.NewMockGateway(ctrl)
	rooms := room.NewRegistry(room.Options{})
	coord := call.NewCoordinator(rooms, media, call.Options{
		Retry:          retry.Config{Attempts: 1},
		CleanupWorkers: 2,
	})

	return &harness{
		media: media,
		rooms: rooms,
		srv:   signaling.NewServer(coord, signaling.DefaultServerOptions()),
	}
}

func (h *harness) connect(t *testing.T, socketID, userID string) *peer {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	p := &peer{done: make(chan struct{})}

	go func() {
		defer close(p.done)
		stream := jsonrpc2.NewBufferedStream(serverSide, jsonrpc2.VSCodeObjectCodec{})
		h.srv.ServeStream(context.Background(), stream, call.Identity{SocketID: socketID, UserID: userID, Name: userID})
	}()

	p.conn = jsonrpc2.NewConn(context.Background(), jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}), p)
	t.Cleanup(func() {
		p.conn.Close()
		<-p.done
	})

	return p
}

func rpcError(t *testing.T, err error) (*jsonrpc2.Error, string) {
	t.Helper()

	var rpcErr *jsonrpc2.Error
	require.ErrorAs(t, err, &rpcErr)

	var data payload.ErrorData
	require.NotNil(t, rpcErr.Data)
	require.NoError(t, json.Unmarshal(*rpcErr.Data, &data))
	return rpcErr, data.Code
}

func TestServer_GroupCall(t *testing.T) {
	h := newHarness(t)

	alice := h.connect(t, "sa", "alice")
	bob := h.connect(t, "sb", "bob")

	var joined payload.JoinRoomResponse
	require.NoError(t, alice.call(t, payload.MethodJoinRoom, payload.JoinRoomRequest{RoomID: "r1"}, &joined))
	assert.Equal(t, "r1", joined.RoomID)
	assert.Empty(t, joined.ActiveProducers)

	require.NoError(t, bob.call(t, payload.MethodJoinRoom, payload.JoinRoomRequest{RoomID: "r1"}, &joined))
	require.Eventually(t, func() bool { return alice.has(payload.EventUserJoined) }, time.Second, 5*time.Millisecond)

	var userJoined payload.UserJoinedEvent
	alice.last(t, payload.EventUserJoined, &userJoined)
	assert.Equal(t, "bob", userJoined.UserID)
	assert.Equal(t, "sb", userJoined.SocketID)

	h.media.EXPECT().CreateTransport(gomock.Any(), gomock.Any()).Return(&mediaserver.TransportOptions{
		ID:  "ta",
		Raw: json.RawMessage(`{"id":"ta","iceParameters":{"usernameFragment":"u"},"iceCandidates":[],"dtlsParameters":{"role":"auto"}}`),
	}, nil)

	var transport json.RawMessage
	require.NoError(t, alice.call(t, payload.MethodCreateWebRtcTransport, payload.CreateWebRtcTransportRequest{RoomID: "r1", Producing: true}, &transport))
	assert.JSONEq(t, `{"id":"ta","iceParameters":{"usernameFragment":"u"},"iceCandidates":[],"dtlsParameters":{"role":"auto"}}`, string(transport))

	h.media.EXPECT().ConnectTransport(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	connect := payload.ConnectWebRtcTransportRequest{RoomID: "r1", TransportID: "ta", DtlsParameters: json.RawMessage(`{"role":"client"}`)}
	var ok payload.OKResponse
	require.NoError(t, alice.call(t, payload.MethodConnectWebRtcTransport, connect, &ok))
	assert.True(t, ok.OK)

	t.Run("二度目のconnectはAlreadyConnected", func(t *testing.T) {
		err := alice.call(t, payload.MethodConnectWebRtcTransport, connect, &ok)

		rpcErr, code := rpcError(t, err)
		assert.Equal(t, payload.CodeAlreadyConnected, rpcErr.Code)
		assert.Equal(t, "AlreadyConnected", code)
	})

	t.Run("他人のトランスポートへのconnectはForbidden", func(t *testing.T) {
		err := bob.call(t, payload.MethodConnectWebRtcTransport, connect, &ok)

		rpcErr, code := rpcError(t, err)
		assert.Equal(t, payload.CodeForbidden, rpcErr.Code)
		assert.Equal(t, "Forbidden", code)
	})

	h.media.EXPECT().Produce(gomock.Any(), gomock.Any()).Return("pa", nil)

	var produced payload.ProduceResponse
	require.NoError(t, alice.call(t, payload.MethodProduce, payload.ProduceRequest{
		RoomID:        "r1",
		TransportID:   "ta",
		Kind:          "audio",
		RtpParameters: json.RawMessage(`{"codecs":[]}`),
	}, &produced))
	assert.Equal(t, "pa", produced.ProducerID)

	require.Eventually(t, func() bool { return bob.has(payload.EventNewProducer) }, time.Second, 5*time.Millisecond)
	var newProducer payload.NewProducerEvent
	bob.last(t, payload.EventNewProducer, &newProducer)
	assert.Equal(t, "pa", newProducer.ProducerID)
	assert.Equal(t, "alice", newProducer.UserID)
	assert.Equal(t, "sa", newProducer.SocketID)
	assert.False(t, alice.has(payload.EventNewProducer))

	carol := h.connect(t, "sc", "carol")
	require.NoError(t, carol.call(t, payload.MethodJoinRoom, payload.JoinRoomRequest{RoomID: "r1"}, &joined))
	require.Len(t, joined.ActiveProducers, 1)
	assert.Equal(t, "pa", joined.ActiveProducers[0].ProducerID)
	assert.Equal(t, "sa", joined.ActiveProducers[0].SocketID)

	require.Eventually(t, func() bool { return carol.has(payload.EventActiveProducers) }, time.Second, 5*time.Millisecond)
	var active payload.ActiveProducersEvent
	carol.last(t, payload.EventActiveProducers, &active)
	require.Len(t, active.Producers, 1)
	assert.Equal(t, "pa", active.Producers[0].ProducerID)
	assert.Equal(t, active.Producers, joined.ActiveProducers)

	h.media.EXPECT().CreateTransport(gomock.Any(), mediaserver.CreateTransportRequest{RoomID: "r1", Consuming: true}).Return(&mediaserver.TransportOptions{
		ID:  "tb",
		Raw: json.RawMessage(`{"id":"tb"}`),
	}, nil)
	require.NoError(t, bob.call(t, payload.MethodCreateWebRtcTransport, payload.CreateWebRtcTransportRequest{RoomID: "r1", Consuming: true}, &transport))

	h.media.EXPECT().Consume(gomock.Any(), mediaserver.ConsumeRequest{
		RoomID:          "r1",
		TransportID:     "tb",
		ProducerID:      "pa",
		RtpCapabilities: json.RawMessage(`{"codecs":[]}`),
		ConsumingUserID: "bob",
	}).Return(&mediaserver.ConsumerOptions{
		ID:         "cb",
		ProducerID: "pa",
		Kind:       "audio",
		Raw:        json.RawMessage(`{"id":"cb","producerId":"pa","kind":"audio","rtpParameters":{}}`),
	}, nil).Times(1)

	consume := payload.ConsumeRequest{RoomID: "r1", TransportID: "tb", ProducerID: "pa", RtpCapabilities: json.RawMessage(`{"codecs":[]}`)}
	var consumer json.RawMessage
	require.NoError(t, bob.call(t, payload.MethodConsume, consume, &consumer))
	assert.JSONEq(t, `{"id":"cb","producerId":"pa","kind":"audio","rtpParameters":{}}`, string(consumer))

	h.media.EXPECT().CloseProducer(gomock.Any(), "r1", "pa").Return(nil).Times(1)
	h.media.EXPECT().CloseTransport(gomock.Any(), "r1", "ta").Return(nil).Times(1)

	alice.disconnect(t)

	for _, p := range []*peer{bob, carol} {
		require.Eventually(t, func() bool { return p.has(payload.EventUserLeft) }, time.Second, 5*time.Millisecond)

		var events []string
		for _, m := range p.methods() {
			if m == payload.EventProducerClosed || m == payload.EventUserLeft {
				events = append(events, m)
			}
		}
		assert.Equal(t, []string{payload.EventProducerClosed, payload.EventUserLeft}, events)

		var closed payload.ProducerClosedEvent
		p.last(t, payload.EventProducerClosed, &closed)
		assert.Equal(t, "pa", closed.ProducerID)
	}

	members, err := h.rooms.ListMembers("r1")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	err = h.rooms.View("r1", func(tx *room.Tx) error {
		assert.Empty(t, tx.ConsumersOf("sb"))
		return nil
	})
	require.NoError(t, err)

	t.Run("退室したメンバーのプロデューサーはconsumeできない", func(t *testing.T) {
		err := carol.call(t, payload.MethodConsume, payload.ConsumeRequest{
			RoomID:          "r1",
			TransportID:     "tc",
			ProducerID:      "pa",
			RtpCapabilities: json.RawMessage(`{}`),
		}, nil)

		rpcErr, code := rpcError(t, err)
		assert.Equal(t, payload.CodeNotFound, rpcErr.Code)
		assert.Equal(t, "NotFound", code)
	})

	// bob's consuming transport is released when his connection closes
	h.media.EXPECT().CloseTransport(gomock.Any(), "r1", "tb").Return(nil).Times(1)
}

func TestServer_Errors(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "sa", "alice")

	t.Run("未知のメソッドはMethodNotFound", func(t *testing.T) {
		err := alice.call(t, "dance", nil, nil)

		var rpcErr *jsonrpc2.Error
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, int64(jsonrpc2.CodeMethodNotFound), rpcErr.Code)
	})

	t.Run("roomIdがなければValidationError", func(t *testing.T) {
		err := alice.call(t, payload.MethodJoinRoom, map[string]any{}, nil)

		rpcErr, code := rpcError(t, err)
		assert.Equal(t, payload.CodeValidation, rpcErr.Code)
		assert.Equal(t, "ValidationError", code)
	})

	t.Run("不正なkindはValidationError", func(t *testing.T) {
		err := alice.call(t, payload.MethodProduce, payload.ProduceRequest{
			RoomID:        "r1",
			TransportID:   "ta",
			Kind:          "data",
			RtpParameters: json.RawMessage(`{}`),
		}, nil)

		_, code := rpcError(t, err)
		assert.Equal(t, "ValidationError", code)
	})

	t.Run("参加前の操作はForbidden", func(t *testing.T) {
		err := alice.call(t, payload.MethodGetRouterRtpCapabilities, payload.GetRouterRtpCapabilitiesRequest{RoomID: "r1"}, nil)

		_, code := rpcError(t, err)
		assert.Equal(t, "Forbidden", code)
	})

	t.Run("メディアサーバーのタイムアウト", func(t *testing.T) {
		var joined payload.JoinRoomResponse
		require.NoError(t, alice.call(t, payload.MethodJoinRoom, payload.JoinRoomRequest{RoomID: "r1"}, &joined))

		h.media.EXPECT().GetRouterRtpCapabilities(gomock.Any(), "r1").Return(nil, &mediaserver.Error{
			Operation: mediaserver.OpGetRouterRtpCapabilities,
			RoomID:    "r1",
			Cause:     mediaserver.ErrTimeout,
		})

		err := alice.call(t, payload.MethodGetRouterRtpCapabilities, payload.GetRouterRtpCapabilitiesRequest{RoomID: "r1"}, nil)

		rpcErr, code := rpcError(t, err)
		assert.Equal(t, payload.CodeMediaServerTimeout, rpcErr.Code)
		assert.Equal(t, "MediaServerTimeout", code)
	})

	t.Run("id付きのないリクエストの失敗はerrorイベントになる", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		require.NoError(t, alice.conn.Notify(ctx, payload.MethodCloseProducer, payload.CloseProducerRequest{RoomID: "r1", ProducerID: "missing"}))

		require.Eventually(t, func() bool { return alice.has(payload.EventError) }, time.Second, 5*time.Millisecond)
		var ev payload.ErrorEvent
		alice.last(t, payload.EventError, &ev)
		assert.Equal(t, "NotFound", ev.Code)
	})
}

func TestIdentityFromRequest(t *testing.T) {
	t.Run("ヘッダーを優先する", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?userId=query", nil)
		r.Header.Set(signaling.HeaderUserID, "alice")
		r.Header.Set(signaling.HeaderUserName, "Alice")

		id := signaling.IdentityFromRequest(r)

		assert.Equal(t, "alice", id.UserID)
		assert.Equal(t, "Alice", id.Name)
		assert.NotEmpty(t, id.SocketID)
	})

	t.Run("クエリにフォールバックし名前はユーザーidになる", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?userId=bob", nil)

		id := signaling.IdentityFromRequest(r)

		assert.Equal(t, "bob", id.UserID)
		assert.Equal(t, "bob", id.Name)
	})

	t.Run("接続ごとに別のソケットid", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?userId=bob", nil)

		assert.NotEqual(t, signaling.IdentityFromRequest(r).SocketID, signaling.IdentityFromRequest(r).SocketID)
	})
}

func TestServer_HandleWebSocket(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(http.HandlerFunc(h.srv.HandleWebSocket))
	t.Cleanup(ts.Close)

	t.Run("ユーザーidがなければ401", func(t *testing.T) {
		res, err := http.Get(ts.URL)
		require.NoError(t, err)
		defer res.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})
}

// syncBuffer is written by the server goroutines and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServer_JoinLog(t *testing.T) {
	var out syncBuffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := newHarness(t)
	alice := h.connect(t, "sa", "alice")

	var joined payload.JoinRoomResponse
	require.NoError(t, alice.call(t, payload.MethodJoinRoom, payload.JoinRoomRequest{RoomID: "r1"}, &joined))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"msg":"room joined"`)
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), `"room_id":"r1"`)
	assert.Contains(t, out.String(), `"socket_id":"sa"`)
}
