package room

import (
	"errors"
	"fmt"
)

// 呼び出し側はerrors.Isで以下の分類を判定する。
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
)

var (
	ErrRoomNotFound      = fmt.Errorf("room %w", ErrNotFound)
	ErrTransportNotFound = fmt.Errorf("transport %w", ErrNotFound)
	ErrProducerNotFound  = fmt.Errorf("producer %w", ErrNotFound)

	// ErrNotMember is returned when the caller is not a member of the room it addresses.
	ErrNotMember = fmt.Errorf("not a room member: %w", ErrForbidden)
	// ErrTransportForbidden hides whether a foreign transport exists at all.
	ErrTransportForbidden = fmt.Errorf("transport not owned by caller: %w", ErrForbidden)
	ErrProducerForbidden  = fmt.Errorf("producer not owned by caller: %w", ErrForbidden)

	ErrAlreadyConnected      = fmt.Errorf("transport already connected: %w", ErrInvalidState)
	ErrTransportConnecting   = fmt.Errorf("transport connect in progress: %w", ErrInvalidState)
	ErrTransportClosed       = fmt.Errorf("transport closed: %w", ErrInvalidState)
	ErrTransportFailed       = fmt.Errorf("transport failed, close and recreate it: %w", ErrInvalidState)
	ErrTransportNotConnected = fmt.Errorf("transport not connected: %w", ErrInvalidState)
	ErrTransportNotProducing = fmt.Errorf("transport not producing: %w", ErrInvalidState)
	ErrTransportNotConsuming = fmt.Errorf("transport not consuming: %w", ErrInvalidState)
	ErrDuplicateConsumer     = fmt.Errorf("consumer already exists: %w", ErrInvalidState)
	ErrReadOnly              = fmt.Errorf("mutation inside read-only view: %w", ErrInvalidState)
)
