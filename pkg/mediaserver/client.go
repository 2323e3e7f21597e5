package mediaserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/HMasataka/huddle/internal/metrics"
	"github.com/gorilla/rpc/v2/json2"
)

type ClientOptions struct {
	URL string
	// Service is the JSON-RPC service name; methods are called as "<Service>.<Operation>".
	Service    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		URL:     "http://localhost:3000/rpc",
		Service: "MediaServer",
		Timeout: 10 * time.Second,
	}
}

var _ Gateway = (*Client)(nil)

// Client talks JSON-RPC 2.0 over HTTP POST to the SFU control endpoint.
type Client struct {
	options ClientOptions
	client  *http.Client
}

func NewClient(options ClientOptions) *Client {
	defaults := DefaultClientOptions()
	if options.Service == "" {
		options.Service = defaults.Service
	}
	if options.Timeout <= 0 {
		options.Timeout = defaults.Timeout
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		options: options,
		client:  httpClient,
	}
}

type roomParams struct {
	RoomID string `json:"roomId"`
}

type closeTransportParams struct {
	RoomID      string `json:"roomId"`
	TransportID string `json:"transportId"`
}

type closeProducerParams struct {
	RoomID     string `json:"roomId"`
	ProducerID string `json:"producerId"`
}

type produceResult struct {
	ID string `json:"id"`
}

type ack struct{}

func (c *Client) GetRouterRtpCapabilities(ctx context.Context, roomID string) (json.RawMessage, error) {
	var caps json.RawMessage
	if err := c.call(ctx, OpGetRouterRtpCapabilities, roomID, roomParams{RoomID: roomID}, &caps); err != nil {
		return nil, err
	}
	return caps, nil
}

func (c *Client) CreateTransport(ctx context.Context, req CreateTransportRequest) (*TransportOptions, error) {
	var options TransportOptions
	if err := c.call(ctx, OpCreateTransport, req.RoomID, req, &options); err != nil {
		return nil, err
	}
	if options.ID == "" {
		return nil, &Error{Operation: OpCreateTransport, RoomID: req.RoomID, Cause: errors.New("response without transport id")}
	}
	return &options, nil
}

func (c *Client) ConnectTransport(ctx context.Context, req ConnectTransportRequest) error {
	return c.call(ctx, OpConnectTransport, req.RoomID, req, &ack{})
}

func (c *Client) CloseTransport(ctx context.Context, roomID, transportID string) error {
	return c.call(ctx, OpCloseTransport, roomID, closeTransportParams{RoomID: roomID, TransportID: transportID}, &ack{})
}

func (c *Client) Produce(ctx context.Context, req ProduceRequest) (string, error) {
	var res produceResult
	if err := c.call(ctx, OpProduce, req.RoomID, req, &res); err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", &Error{Operation: OpProduce, RoomID: req.RoomID, Cause: errors.New("response without producer id")}
	}
	return res.ID, nil
}

func (c *Client) Consume(ctx context.Context, req ConsumeRequest) (*ConsumerOptions, error) {
	var options ConsumerOptions
	if err := c.call(ctx, OpConsume, req.RoomID, req, &options); err != nil {
		return nil, err
	}
	if options.ID == "" {
		return nil, &Error{Operation: OpConsume, RoomID: req.RoomID, Cause: errors.New("response without consumer id")}
	}
	return &options, nil
}

func (c *Client) CloseProducer(ctx context.Context, roomID, producerID string) error {
	return c.call(ctx, OpCloseProducer, roomID, closeProducerParams{RoomID: roomID, ProducerID: producerID}, &ack{})
}

func (c *Client) method(op string) string {
	return c.options.Service + "." + strings.ToUpper(op[:1]) + op[1:]
}

func (c *Client) call(ctx context.Context, op, roomID string, params, reply any) error {
	start := time.Now()
	defer func() {
		metrics.MediaServerRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	body, err := json2.EncodeClientRequest(c.method(op), params)
	if err != nil {
		return c.fail(ctx, op, roomID, "encode", fmt.Errorf("failed to encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.options.URL, bytes.NewReader(body))
	if err != nil {
		return c.fail(ctx, op, roomID, "transport", fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return c.fail(ctx, op, roomID, "transport", fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return c.fail(ctx, op, roomID, "status", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if err := json2.DecodeClientResponse(resp.Body, reply); err != nil {
		if _, isAck := reply.(*ack); isAck && errors.Is(err, json2.ErrNullResult) {
			return nil
		}

		var rpcErr *json2.Error
		if errors.As(err, &rpcErr) {
			return c.fail(ctx, op, roomID, "rpc", fmt.Errorf("rpc error %d: %s", rpcErr.Code, rpcErr.Message))
		}
		return c.fail(ctx, op, roomID, "decode", fmt.Errorf("failed to decode response: %w", err))
	}

	return nil
}

func (c *Client) fail(ctx context.Context, op, roomID, reason string, cause error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = "timeout"
		cause = fmt.Errorf("%w after %s: %w", ErrTimeout, c.options.Timeout, cause)
	}

	metrics.MediaServerErrorsTotal.WithLabelValues(op, reason).Inc()
	slog.Warn("media server request failed",
		slog.String("operation", op),
		slog.String("room_id", roomID),
		slog.String("reason", reason),
		slog.String("error", cause.Error()),
	)

	return &Error{Operation: op, RoomID: roomID, Cause: cause}
}
