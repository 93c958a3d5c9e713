package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/irrigation-assistant/internal/advisor"
	"github.com/i474232898/irrigation-assistant/internal/livestate"
)

// baselineTimeout bounds how long a new connection waits for its first snapshot.
const baselineTimeout = 10 * time.Second

func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func websocketHandler(deps Deps) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		s := &session{conn: conn, state: deps.State, chat: deps.Chat, logger: deps.Logger}
		s.serve(context.Background())
	})
}

// frameConn is the part of a websocket connection a session uses.
type frameConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

var errSessionClosed = errors.New("push channel closed")

// session serves one push-channel connection. Writes happen only from the
// hub's delivery goroutine for this observer, and never after serve returns:
// the connection is recycled by the websocket handler at that point.
type session struct {
	conn   frameConn
	state  *livestate.Service
	chat   Responder
	logger *slog.Logger
	id     string

	mu     sync.Mutex
	closed bool
}

func (s *session) Send(ctx context.Context, msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}

func (s *session) serve(ctx context.Context) {
	id, ready, err := s.state.Join(s)
	if err != nil {
		s.logger.Error("push channel join failed", "error", err)
		return
	}
	s.id = id
	defer s.close()

	select {
	case err := <-ready:
		if err != nil {
			s.logger.Debug("push channel baseline not delivered", "observer", id, "error", err)
			return
		}
	case <-time.After(baselineTimeout):
		return
	}

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Debug("push channel closed", "observer", id, "error", err)
			return
		}
		if err := s.handle(ctx, frame); err != nil {
			s.logger.Debug("push channel dropped", "observer", id, "error", err)
			return
		}
	}
}

func (s *session) close() {
	s.state.Leave(s.id)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *session) handle(ctx context.Context, frame []byte) error {
	switch msg := livestate.ParseInbound(frame).(type) {
	case *livestate.ChatMessage:
		var text string
		if s.chat != nil {
			text = s.chat.Reply(ctx, msg.Text, s.state.Snapshot())
		} else {
			text = advisor.FallbackReply(msg.Text, s.state.Snapshot())
		}
		reply, err := livestate.EncodeChat(text)
		if err != nil {
			return err
		}
		return s.reply(reply)
	case *livestate.SetStateMessage:
		_, err := s.state.Update(msg.Payload, livestate.SourceWS)
		return err
	case *livestate.UnknownMessage:
		reply, err := livestate.EncodeEcho(msg)
		if err != nil {
			return err
		}
		return s.reply(reply)
	}
	return nil
}

func (s *session) reply(msg []byte) error {
	err := s.state.Reply(s.id, msg)
	if errors.Is(err, livestate.ErrUnknownObserver) || errors.Is(err, livestate.ErrObserverClosed) {
		return err
	}
	return nil
}
