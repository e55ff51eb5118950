// Package proto defines the wire protocol between the server and book
// viewers. Every frame on the WebSocket is a Msg envelope with a typed
// payload map.
package proto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MsgType string

// Client-to-server message types.
const (
	MsgTypeInit             MsgType = "init"              // Viewer attach: carries book_id
	MsgTypeMessage          MsgType = "message"           // Free-text user turn
	MsgTypePatchNote        MsgType = "patch_note"        // Single-note edit
	MsgTypeUpdateNotes      MsgType = "update_notes"      // Full notes reconciliation
	MsgTypeDeleteNote       MsgType = "delete_note"       // Explicit note removal
	MsgTypeRetryChapter     MsgType = "retry_chapter"     // Regenerate the current chapter
	MsgTypeCancelGeneration MsgType = "cancel_generation" // Abort an in-flight draft
	MsgTypeNextChapter      MsgType = "next_chapter"      // Accept draft, advance
	MsgTypeExpandOutline    MsgType = "expand_outline"    // Append chapters to the outline
)

// Server-to-client message types.
const (
	MsgTypeOutline          MsgType = "outline"            // Current chapter outline
	MsgTypeNotesSync        MsgType = "notes_sync"         // Authoritative notes state
	MsgTypeModeSync         MsgType = "mode_sync"          // interview|writing
	MsgTypeChapterIndexSync MsgType = "chapter_index_sync" // Current chapter position
	MsgTypeResponse         MsgType = "response"           // Complete assistant turn
	MsgTypeHistory          MsgType = "history"            // Transcript replay on attach
	MsgTypeDraftChunk       MsgType = "draft_chunk"        // Streaming draft fragment
	MsgTypeDraftComplete    MsgType = "draft_complete"     // Draft stream finished
	MsgTypeError            MsgType = "error"              // User-visible failure
	MsgTypeLog              MsgType = "log"                // Structured server log line
)

// Payload keys shared across message types.
const (
	KeyBookID       = "book_id"
	KeyContent      = "content"
	KeyRole         = "role"
	KeyNoteID       = "note_id"
	KeyText         = "text"
	KeyNotes        = "notes"
	KeyMode         = "mode"
	KeyChapterIndex = "chapter_index"
	KeyChapters     = "chapters"
	KeyTurns        = "turns"
	KeyReset        = "reset"
	KeyManuscript   = "manuscript"
	KeyInstruction  = "instruction"
	KeyMessage      = "message"
	KeyLevel        = "level"
	KeyComponent    = "component"
)

// Session modes carried in mode_sync frames.
const (
	ModeInterview = "interview"
	ModeWriting   = "writing"
)

// Msg is the envelope for every WebSocket frame in both directions.
type Msg struct {
	ID        string         `json:"id"`
	Type      MsgType        `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewMsg creates a message with a fresh ID and UTC timestamp.
func NewMsg(msgType MsgType) *Msg {
	return &Msg{
		ID:        uuid.New().String(),
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   make(map[string]any),
	}
}

func (msg *Msg) ToJSON() ([]byte, error) {
	return json.Marshal(msg)
}

// FromJSON parses a wire frame into a Msg.
func FromJSON(data []byte) (*Msg, error) {
	var msg Msg
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Msg: %w", err)
	}
	return &msg, nil
}

func (msg *Msg) SetPayload(key string, value any) *Msg {
	if msg.Payload == nil {
		msg.Payload = make(map[string]any)
	}
	msg.Payload[key] = value
	return msg
}

func (msg *Msg) GetPayload(key string) (any, bool) {
	if msg.Payload == nil {
		return nil, false
	}
	val, exists := msg.Payload[key]
	return val, exists
}

// GetString extracts a string payload value.
func (msg *Msg) GetString(key string) (string, bool) {
	if val, exists := msg.GetPayload(key); exists {
		if s, ok := val.(string); ok {
			return s, true
		}
	}
	return "", false
}

// GetInt extracts an integer payload value. JSON numbers decode as float64,
// so both representations are accepted.
func (msg *Msg) GetInt(key string) (int, bool) {
	val, exists := msg.GetPayload(key)
	if !exists {
		return 0, false
	}
	switch n := val.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// GetBool extracts a boolean payload value.
func (msg *Msg) GetBool(key string) (bool, bool) {
	if val, exists := msg.GetPayload(key); exists {
		if b, ok := val.(bool); ok {
			return b, true
		}
	}
	return false, false
}

// DecodePayload unmarshals a payload value into a typed struct via a JSON
// round trip. Used for structured payloads like note lists.
func (msg *Msg) DecodePayload(key string, out any) error {
	val, exists := msg.GetPayload(key)
	if !exists {
		return fmt.Errorf("payload key %s not found", key)
	}
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("failed to re-marshal payload key %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode payload key %s: %w", key, err)
	}
	return nil
}

func (msg *Msg) Clone() *Msg {
	clone := &Msg{
		ID:        msg.ID,
		Type:      msg.Type,
		Timestamp: msg.Timestamp,
	}
	if msg.Payload != nil {
		clone.Payload = make(map[string]any, len(msg.Payload))
		for k, v := range msg.Payload {
			clone.Payload[k] = v
		}
	}
	return clone
}

func (msg *Msg) Validate() error {
	if msg.Type == "" {
		return fmt.Errorf("message type is required")
	}
	if _, valid := ValidateMsgType(string(msg.Type)); !valid {
		return fmt.Errorf("invalid message type: %s", msg.Type)
	}
	return nil
}

// ValidateMsgType validates if a string is a valid message type.
func ValidateMsgType(msgType string) (MsgType, bool) {
	switch MsgType(msgType) {
	case MsgTypeInit, MsgTypeMessage, MsgTypePatchNote, MsgTypeUpdateNotes,
		MsgTypeDeleteNote, MsgTypeRetryChapter, MsgTypeCancelGeneration,
		MsgTypeNextChapter, MsgTypeExpandOutline,
		MsgTypeOutline, MsgTypeNotesSync, MsgTypeModeSync, MsgTypeChapterIndexSync,
		MsgTypeResponse, MsgTypeHistory, MsgTypeDraftChunk, MsgTypeDraftComplete,
		MsgTypeError, MsgTypeLog:
		return MsgType(msgType), true
	default:
		return "", false
	}
}

// ParseMsgType parses a string into a MsgType with validation.
func ParseMsgType(s string) (MsgType, error) {
	if msgType, valid := ValidateMsgType(strings.ToLower(s)); valid {
		return msgType, nil
	}
	return "", fmt.Errorf("unknown message type: %s", s)
}

// IsClientType reports whether the type is valid as a client-to-server frame.
func (mt MsgType) IsClientType() bool {
	switch mt {
	case MsgTypeInit, MsgTypeMessage, MsgTypePatchNote, MsgTypeUpdateNotes,
		MsgTypeDeleteNote, MsgTypeRetryChapter, MsgTypeCancelGeneration,
		MsgTypeNextChapter, MsgTypeExpandOutline:
		return true
	default:
		return false
	}
}

// String returns the string representation of MsgType.
func (mt MsgType) String() string {
	return string(mt)
}
