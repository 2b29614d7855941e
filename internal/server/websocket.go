package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cisec/aisac-logformat/pkg/protocol"
)

const (
	wsReadTimeout  = 90 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// handleWebSocket serves recommendation requests over a long-lived stream.
// Each request frame is answered by one reply carrying its ID in request_id.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if status, msg := s.authenticate(r); status != http.StatusOK {
		s.logger.Warn().Str("remote", r.RemoteAddr).Msg("WebSocket connection rejected")
		writeError(w, status, msg)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	s.logger.Info().Str("remote", r.RemoteAddr).Msg("Stream client connected")

	sc := &streamConn{conn: conn}
	for {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("Read error")
			}
			break
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to parse message")
			sc.reply(s, "", protocol.MessageTypeError, protocol.ErrorResponse{Error: "invalid message"})
			continue
		}

		replyType, payload := s.dispatch(r, &msg)
		if err := sc.reply(s, msg.ID, replyType, payload); err != nil {
			break
		}
	}

	s.logger.Info().Str("remote", r.RemoteAddr).Msg("Stream client disconnected")
}

// dispatch runs one stream request and returns the reply to send.
func (s *Server) dispatch(r *http.Request, msg *protocol.Message) (protocol.MessageType, interface{}) {
	switch msg.Type {
	case protocol.MessageTypePing:
		return protocol.MessageTypePong, nil

	case protocol.MessageTypeRecommend:
		var req protocol.RecommendRequest
		if err := msg.ParsePayload(&req); err != nil {
			return protocol.MessageTypeError, protocol.ErrorResponse{Error: "invalid recommend payload"}
		}
		resp, _, err := s.recommend(r.Context(), req)
		if err != nil {
			return protocol.MessageTypeError, protocol.ErrorResponse{Error: err.Error()}
		}
		return protocol.MessageTypeResult, resp

	case protocol.MessageTypeRecommendBatch:
		var req protocol.BatchRequest
		if err := msg.ParsePayload(&req); err != nil {
			return protocol.MessageTypeError, protocol.ErrorResponse{Error: "invalid batch payload"}
		}
		resp, _, err := s.recommendBatch(r.Context(), req)
		if err != nil {
			return protocol.MessageTypeError, protocol.ErrorResponse{Error: err.Error()}
		}
		return protocol.MessageTypeResult, resp

	default:
		s.logger.Warn().Str("type", string(msg.Type)).Msg("Unknown message type")
		return protocol.MessageTypeError, protocol.ErrorResponse{Error: "unknown message type: " + string(msg.Type)}
	}
}

// streamConn serializes writes to one connection.
type streamConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *streamConn) reply(s *Server, requestID string, msgType protocol.MessageType, payload interface{}) error {
	msg, err := protocol.NewReply(requestID, msgType, payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create reply")
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to send reply")
		return err
	}
	return nil
}
