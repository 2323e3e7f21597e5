package mediaserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	OpGetRouterRtpCapabilities = "getRouterRtpCapabilities"
	OpCreateTransport          = "createTransport"
	OpConnectTransport         = "connectTransport"
	OpCloseTransport           = "closeTransport"
	OpProduce                  = "produce"
	OpConsume                  = "consume"
	OpCloseProducer            = "closeProducer"
)

var (
	// ErrMediaServer matches every failure reported by a Gateway.
	ErrMediaServer = errors.New("media server error")
	// ErrTimeout matches media server calls that exceeded their deadline.
	ErrTimeout = errors.New("media server timeout")
)

// Error wraps a media server failure with the operation that caused it.
type Error struct {
	Operation string
	RoomID    string
	Cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("media server %s (room %s): %v", e.Operation, e.RoomID, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	return target == ErrMediaServer
}

// Gatewayは外部SFUへの型付きリクエスト/レスポンスクライアントです。
// 状態を持たず、リトライも行いません。リトライの判断は呼び出し側の責務です。
//
//go:generate mockgen -source gateway.go -destination mock/gateway.go
type Gateway interface {
	GetRouterRtpCapabilities(ctx context.Context, roomID string) (json.RawMessage, error)
	CreateTransport(ctx context.Context, req CreateTransportRequest) (*TransportOptions, error)
	ConnectTransport(ctx context.Context, req ConnectTransportRequest) error
	CloseTransport(ctx context.Context, roomID, transportID string) error
	Produce(ctx context.Context, req ProduceRequest) (string, error)
	Consume(ctx context.Context, req ConsumeRequest) (*ConsumerOptions, error)
	CloseProducer(ctx context.Context, roomID, producerID string) error
}

type CreateTransportRequest struct {
	RoomID           string          `json:"roomId"`
	Producing        bool            `json:"producing"`
	Consuming        bool            `json:"consuming"`
	SctpCapabilities json.RawMessage `json:"sctpCapabilities,omitempty"`
}

type ConnectTransportRequest struct {
	RoomID         string          `json:"roomId"`
	TransportID    string          `json:"transportId"`
	DtlsParameters json.RawMessage `json:"dtlsParameters"`
}

type ProduceRequest struct {
	RoomID        string          `json:"roomId"`
	TransportID   string          `json:"transportId"`
	Kind          string          `json:"kind"`
	RtpParameters json.RawMessage `json:"rtpParameters"`
	AppData       json.RawMessage `json:"appData,omitempty"`
}

type ConsumeRequest struct {
	RoomID          string          `json:"roomId"`
	TransportID     string          `json:"transportId"`
	ProducerID      string          `json:"producerId"`
	RtpCapabilities json.RawMessage `json:"rtpCapabilities"`
	ConsumingUserID string          `json:"consumingUserId"`
}

// TransportOptions is the media server's ICE/DTLS description of a new transport.
// It is relayed to the client byte for byte; only the id is read.
type TransportOptions struct {
	ID  string
	Raw json.RawMessage
}

func (o TransportOptions) MarshalJSON() ([]byte, error) {
	return marshalRaw(o.Raw)
}

func (o *TransportOptions) UnmarshalJSON(data []byte) error {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	o.ID = head.ID
	o.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// ConsumerOptions is the media server's description of a new consumer, relayed unchanged.
type ConsumerOptions struct {
	ID         string
	ProducerID string
	Kind       string
	Raw        json.RawMessage
}

func (o ConsumerOptions) MarshalJSON() ([]byte, error) {
	return marshalRaw(o.Raw)
}

func (o *ConsumerOptions) UnmarshalJSON(data []byte) error {
	var head struct {
		ID         string `json:"id"`
		ProducerID string `json:"producerId"`
		Kind       string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	o.ID = head.ID
	o.ProducerID = head.ProducerID
	o.Kind = head.Kind
	o.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func marshalRaw(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("null"), nil
	}
	return raw, nil
}
