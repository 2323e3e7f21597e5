package handler

import (
	"errors"

	"github.com/HMasataka/huddle/payload/signaling"
	"github.com/HMasataka/huddle/pkg/mediaserver"
	"github.com/HMasataka/huddle/pkg/room"
	"github.com/sourcegraph/jsonrpc2"
)

type errorClass struct {
	target error
	code   int64
	name   string
}

// 判定は上から順に行う。AlreadyConnectedはInvalidStateを、TimeoutはMediaServerErrorを包むため先に置く。
var errorClasses = []errorClass{
	{room.ErrValidation, signaling.CodeValidation, "ValidationError"},
	{room.ErrAlreadyConnected, signaling.CodeAlreadyConnected, "AlreadyConnected"},
	{mediaserver.ErrTimeout, signaling.CodeMediaServerTimeout, "MediaServerTimeout"},
	{mediaserver.ErrMediaServer, signaling.CodeMediaServer, "MediaServerError"},
	{room.ErrForbidden, signaling.CodeForbidden, "Forbidden"},
	{room.ErrNotFound, signaling.CodeNotFound, "NotFound"},
	{room.ErrInvalidState, signaling.CodeInvalidState, "InvalidState"},
}

// toRPCError maps an error to its wire representation and taxonomy name.
func toRPCError(err error) (*jsonrpc2.Error, string) {
	name := "InternalError"
	rpcErr := &jsonrpc2.Error{Code: signaling.CodeInternal, Message: "internal error"}

	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			name = c.name
			rpcErr = &jsonrpc2.Error{Code: c.code, Message: err.Error()}
			break
		}
	}

	rpcErr.SetError(signaling.ErrorData{Code: name})
	return rpcErr, name
}
