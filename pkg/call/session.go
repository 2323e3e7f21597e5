package call

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/HMasataka/huddle/pkg/mediaserver"
	"github.com/HMasataka/huddle/pkg/room"
)

// Identity is who is on the other end of a signaling connection.
type Identity struct {
	SocketID string
	UserID   string
	Name     string
}

/*
Sessionは1本のシグナリング接続に対応します。
接続が保持するのは自分のメンバーID、参加中のルーム、所有するトランスポートIDだけで、
それ以外の状態はすべてRegistryにあります。
Closeは切断時に一度だけ実行され、退室と同じ後片付けを行います。
*/
type Session struct {
	coord    *Coordinator
	member   room.Member
	notifier room.Notifier

	mu         sync.Mutex
	roomID     string
	transports map[string]struct{}
	closed     bool
	closeOnce  sync.Once
}

func (c *Coordinator) NewSession(id Identity, n room.Notifier) *Session {
	return &Session{
		coord: c,
		member: room.Member{
			ID:          room.MemberID(id.SocketID),
			UserID:      id.UserID,
			DisplayName: id.Name,
		},
		notifier:   n,
		transports: make(map[string]struct{}),
	}
}

func (s *Session) MemberID() room.MemberID {
	return s.member.ID
}

func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Transports returns the ids of the transports this connection created and has not closed.
func (s *Session) Transports() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.transports))
	for id := range s.transports {
		ids = append(ids, id)
	}
	return ids
}

// room returns ErrNotMember unless the session is currently in roomID.
func (s *Session) room(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.roomID == "" || s.roomID != roomID {
		return room.ErrNotMember
	}
	return nil
}

// Join enters roomID. A connection is in at most one room at a time; joining the same room
// again returns the current state.
func (s *Session) Join(roomID string) (room.JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return room.JoinResult{}, room.ErrInvalidState
	}
	if s.roomID != "" && s.roomID != roomID {
		return room.JoinResult{}, room.ErrInvalidState
	}

	m := s.member
	m.JoinedAt = time.Now()

	res, err := s.coord.Join(roomID, m, s.notifier)
	if err != nil {
		return room.JoinResult{}, err
	}
	s.roomID = roomID

	return res, nil
}

// Leave exits roomID. Leaving a room the session is not in is a no-op.
func (s *Session) Leave(ctx context.Context, roomID string) error {
	s.mu.Lock()
	if s.roomID == "" || s.roomID != roomID {
		s.mu.Unlock()
		return nil
	}
	s.roomID = ""
	s.transports = make(map[string]struct{})
	s.mu.Unlock()

	_, err := s.coord.Leave(ctx, roomID, s.member.ID)
	return err
}

func (s *Session) RouterRtpCapabilities(ctx context.Context, roomID string) (json.RawMessage, error) {
	if err := s.room(roomID); err != nil {
		return nil, err
	}
	return s.coord.RouterRtpCapabilities(ctx, roomID, s.member.ID)
}

func (s *Session) CreateTransport(ctx context.Context, roomID string, req TransportRequest) (*mediaserver.TransportOptions, error) {
	if err := s.room(roomID); err != nil {
		return nil, err
	}

	opts, err := s.coord.Transports.Create(ctx, roomID, s.member.ID, req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.transports[opts.ID] = struct{}{}
	s.mu.Unlock()

	return opts, nil
}

func (s *Session) ConnectTransport(ctx context.Context, roomID, transportID string, dtlsParameters json.RawMessage) error {
	if err := s.room(roomID); err != nil {
		return err
	}
	if !s.ownsTransport(transportID) {
		return room.ErrTransportForbidden
	}
	return s.coord.Transports.Connect(ctx, roomID, s.member.ID, transportID, dtlsParameters)
}

func (s *Session) CloseTransport(ctx context.Context, roomID, transportID string) error {
	if err := s.room(roomID); err != nil {
		return err
	}
	if !s.ownsTransport(transportID) {
		return room.ErrTransportForbidden
	}

	if err := s.coord.Transports.Close(ctx, roomID, s.member.ID, transportID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.transports, transportID)
	s.mu.Unlock()

	return nil
}

func (s *Session) ownsTransport(transportID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.transports[transportID]
	return ok
}

func (s *Session) Produce(ctx context.Context, req ProduceRequest) (string, error) {
	if err := s.room(req.RoomID); err != nil {
		return "", err
	}
	req.MemberID = s.member.ID
	return s.coord.Producers.Produce(ctx, req)
}

func (s *Session) Consume(ctx context.Context, req ConsumeRequest) (*mediaserver.ConsumerOptions, error) {
	if err := s.room(req.RoomID); err != nil {
		return nil, err
	}
	req.MemberID = s.member.ID
	return s.coord.Consumers.Consume(ctx, req)
}

func (s *Session) CloseProducer(ctx context.Context, roomID, producerID string) error {
	if err := s.room(roomID); err != nil {
		return err
	}
	return s.coord.Producers.Close(ctx, roomID, s.member.ID, producerID)
}

func (s *Session) StartScreenShare(ctx context.Context, req StartScreenShareRequest) (string, error) {
	if err := s.room(req.RoomID); err != nil {
		return "", err
	}
	req.MemberID = s.member.ID
	return s.coord.ScreenShare.Start(ctx, req)
}

func (s *Session) StopScreenShare(ctx context.Context, roomID, producerID string) error {
	if err := s.room(roomID); err != nil {
		return err
	}
	return s.coord.ScreenShare.Stop(ctx, roomID, s.member.ID, producerID)
}

// Close runs the disconnect cleanup. Only the first call has any effect.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		roomID := s.roomID
		s.roomID = ""
		s.transports = make(map[string]struct{})
		s.mu.Unlock()

		if roomID == "" {
			return
		}

		if _, err := s.coord.Leave(ctx, roomID, s.member.ID); err != nil {
			slog.Warn("disconnect cleanup failed",
				slog.String("room_id", roomID),
				slog.String("socket_id", string(s.member.ID)),
				slog.String("error", err.Error()),
			)
		}
	})
}
