package signaling

import "encoding/json"

// Client to server requests.
const (
	MethodJoinRoom                 = "joinRoom"
	MethodLeaveRoom                = "leaveRoom"
	MethodGetRouterRtpCapabilities = "getRouterRtpCapabilities"
	MethodCreateWebRtcTransport    = "createWebRtcTransport"
	MethodConnectWebRtcTransport   = "connectWebRtcTransport"
	MethodCloseWebRtcTransport     = "closeWebRtcTransport"
	MethodProduce                  = "produce"
	MethodConsume                  = "consume"
	MethodCloseProducer            = "closeProducer"
	MethodStartScreenShare         = "startScreenShare"
	MethodStopScreenShare          = "stopScreenShare"
)

// Server to client notifications.
const (
	EventUserJoined      = "userJoined"
	EventUserLeft        = "userLeft"
	EventNewProducer     = "newProducer"
	EventProducerClosed  = "producerClosed"
	EventActiveProducers = "activeProducers"
	EventError           = "error"
)

const AppDataTypeScreen = "screen"

type RoomRequest struct {
	RoomID string `json:"roomId" validate:"required"`
}

type JoinRoomRequest = RoomRequest

type JoinRoomResponse struct {
	RoomID          string         `json:"roomId"`
	ActiveProducers []ProducerInfo `json:"activeProducers"`
}

type LeaveRoomRequest = RoomRequest

type OKResponse struct {
	OK bool `json:"ok"`
}

type GetRouterRtpCapabilitiesRequest = RoomRequest

type GetRouterRtpCapabilitiesResponse struct {
	RtpCapabilities json.RawMessage `json:"rtpCapabilities"`
}

type CreateWebRtcTransportRequest struct {
	RoomID           string          `json:"roomId" validate:"required"`
	Producing        bool            `json:"producing"`
	Consuming        bool            `json:"consuming"`
	SctpCapabilities json.RawMessage `json:"sctpCapabilities,omitempty"`
}

type ConnectWebRtcTransportRequest struct {
	RoomID         string          `json:"roomId" validate:"required"`
	TransportID    string          `json:"transportId" validate:"required"`
	DtlsParameters json.RawMessage `json:"dtlsParameters" validate:"required"`
}

type CloseWebRtcTransportRequest struct {
	RoomID      string `json:"roomId" validate:"required"`
	TransportID string `json:"transportId" validate:"required"`
}

type ProduceRequest struct {
	RoomID        string          `json:"roomId" validate:"required"`
	TransportID   string          `json:"transportId" validate:"required"`
	Kind          string          `json:"kind" validate:"required,oneof=audio video"`
	RtpParameters json.RawMessage `json:"rtpParameters" validate:"required"`
	AppData       json.RawMessage `json:"appData,omitempty"`
}

type ProduceResponse struct {
	ProducerID string `json:"producerId"`
}

type ConsumeRequest struct {
	RoomID          string          `json:"roomId" validate:"required"`
	TransportID     string          `json:"transportId" validate:"required"`
	ProducerID      string          `json:"producerId" validate:"required"`
	RtpCapabilities json.RawMessage `json:"rtpCapabilities" validate:"required"`
}

type CloseProducerRequest struct {
	RoomID     string `json:"roomId" validate:"required"`
	ProducerID string `json:"producerId" validate:"required"`
}

type StartScreenShareRequest struct {
	RoomID        string          `json:"roomId" validate:"required"`
	TransportID   string          `json:"transportId" validate:"required"`
	RtpParameters json.RawMessage `json:"rtpParameters" validate:"required"`
	AppData       json.RawMessage `json:"appData,omitempty"`
}

type StopScreenShareRequest = CloseProducerRequest

// ProducerInfo describes a producer another member may consume.
type ProducerInfo struct {
	ProducerID string          `json:"producerId"`
	UserID     string          `json:"userId"`
	SocketID   string          `json:"socketId"`
	Kind       string          `json:"kind"`
	AppData    json.RawMessage `json:"appData,omitempty"`
}

type UserJoinedEvent struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	SocketID string `json:"socketId"`
}

type UserLeftEvent struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	SocketID string `json:"socketId"`
}

type NewProducerEvent struct {
	RoomID     string          `json:"roomId"`
	ProducerID string          `json:"producerId"`
	UserID     string          `json:"userId"`
	Kind       string          `json:"kind"`
	AppData    json.RawMessage `json:"appData,omitempty"`
	SocketID   string          `json:"socketId"`
}

type ProducerClosedEvent struct {
	RoomID     string `json:"roomId"`
	ProducerID string `json:"producerId"`
	UserID     string `json:"userId,omitempty"`
	SocketID   string `json:"socketId,omitempty"`
}

type ActiveProducersEvent struct {
	RoomID    string         `json:"roomId"`
	Producers []ProducerInfo `json:"producers"`
}

type ErrorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error codes carried in the JSON-RPC error object.
const (
	CodeValidation         int64 = -32602
	CodeForbidden          int64 = 4003
	CodeNotFound           int64 = 4004
	CodeInvalidState       int64 = 4009
	CodeAlreadyConnected   int64 = 4010
	CodeMediaServer        int64 = 5002
	CodeMediaServerTimeout int64 = 5004
	CodeInternal           int64 = -32603
)

// ErrorData is attached to JSON-RPC errors as error.data.
type ErrorData struct {
	Code string `json:"code"`
}
