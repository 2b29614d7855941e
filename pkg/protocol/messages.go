// Package protocol defines the request, response and stream message formats
// of the recommendation service.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/cisec/aisac-logformat/pkg/types"
)

// MessageType represents the type of stream message.
type MessageType string

const (
	// Client -> Server messages
	MessageTypeRecommend      MessageType = "recommend"
	MessageTypeRecommendBatch MessageType = "recommend_batch"
	MessageTypePing           MessageType = "ping"

	// Server -> Client messages
	MessageTypeResult MessageType = "result"
	MessageTypeError  MessageType = "error"
	MessageTypePong   MessageType = "pong"
)

// Message is the envelope of every WebSocket frame.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	// RequestID links a server reply to the client message it answers.
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// RecommendRequest asks for recommendations for one line.
type RecommendRequest struct {
	Line    string        `json:"line"`
	Options types.Options `json:"options"`
}

// BatchRequest asks for recommendations for several lines. With PerLine the
// response carries one list per line; otherwise results are merged.
type BatchRequest struct {
	Lines   []string      `json:"lines"`
	Options types.Options `json:"options"`
	PerLine bool          `json:"per_line,omitempty"`
}

// RecommendResponse is the result of a single-line request.
type RecommendResponse struct {
	Recommendations []types.Recommendation `json:"recommendations"`
	ElapsedMs       float64                `json:"elapsed_ms"`
}

// BatchResponse is the result of a batch request.
type BatchResponse struct {
	Lines           int                      `json:"lines"`
	Recommendations []types.Recommendation   `json:"recommendations,omitempty"`
	PerLine         [][]types.Recommendation `json:"per_line,omitempty"`
	ElapsedMs       float64                  `json:"elapsed_ms"`
}

// HealthResponse reports service state.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Formats  int    `json:"formats"`
	Patterns int    `json:"patterns"`
	// Compiled-template cache state.
	CompiledTemplates int `json:"compiled_templates"`
	CompileFailures   int `json:"compile_failures"`
}

// ReloadResponse reports the outcome of a catalog reload.
type ReloadResponse struct {
	Formats int `json:"formats"`
}

// ErrorResponse is returned with every non-2xx status and as the payload
// of error messages.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewMessage creates a new protocol message with the given type and payload.
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payloadBytes,
	}, nil
}

// NewReply creates a message answering the message with ID requestID.
func NewReply(requestID string, msgType MessageType, payload interface{}) (*Message, error) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	msg.RequestID = requestID
	return msg, nil
}

// ParsePayload unmarshals the message payload into the given target.
func (m *Message) ParsePayload(target interface{}) error {
	return json.Unmarshal(m.Payload, target)
}
