// Package ocpp implements the OCPP 1.6J wire codec: the 3/4-tuple JSON
// frames, the supported action set, and per-action payload validation.
package ocpp

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// MessageType is the first element of every OCPP-J frame.
type MessageType int

const (
	MessageTypeCall       MessageType = 2
	MessageTypeCallResult MessageType = 3
	MessageTypeCallError  MessageType = 4
)

// Subprotocol is the WebSocket subprotocol negotiated with chargers.
const Subprotocol = "ocpp1.6"

// MaxMessageIDLength bounds the messageId field per OCPP-J.
const MaxMessageIDLength = 36

// ErrorCode is an OCPP-J CALLERROR code.
type ErrorCode string

const (
	ErrNotImplemented                 ErrorCode = "NotImplemented"
	ErrNotSupported                   ErrorCode = "NotSupported"
	ErrInternalError                  ErrorCode = "InternalError"
	ErrProtocolError                  ErrorCode = "ProtocolError"
	ErrSecurityError                  ErrorCode = "SecurityError"
	ErrFormationViolation             ErrorCode = "FormationViolation"
	ErrPropertyConstraintViolation    ErrorCode = "PropertyConstraintViolation"
	ErrOccurrenceConstraintViolation  ErrorCode = "OccurrenceConstraintViolation"
	ErrTypeConstraintViolation        ErrorCode = "TypeConstraintViolation"
	ErrGenericError                   ErrorCode = "GenericError"
)

// Frame is one decoded OCPP-J message. Exactly one of the three shapes
// is populated depending on Type.
type Frame struct {
	Type             MessageType
	MessageID        string
	Action           string          // CALL only
	Payload          json.RawMessage // CALL and CALLRESULT
	ErrorCode        ErrorCode       // CALLERROR only
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// CallError is the error a handler returns when an inbound CALL cannot
// be served; the router encodes it as a CALLERROR frame.
type CallError struct {
	Code        ErrorCode
	Description string
	Details     json.RawMessage
}

func (e *CallError) Error() string {
	return fmt.Sprintf("ocpp call error %s: %s", e.Code, e.Description)
}

// NewCallError builds a CallError with empty details.
func NewCallError(code ErrorCode, description string) *CallError {
	return &CallError{Code: code, Description: description}
}

// NewCall builds an outbound CALL frame.
func NewCall(messageID, action string, payload json.RawMessage) *Frame {
	return &Frame{Type: MessageTypeCall, MessageID: messageID, Action: action, Payload: payload}
}

// NewCallResult builds a CALLRESULT frame answering messageID.
func NewCallResult(messageID string, payload json.RawMessage) *Frame {
	return &Frame{Type: MessageTypeCallResult, MessageID: messageID, Payload: payload}
}

// NewCallErrorFrame builds a CALLERROR frame answering messageID.
func NewCallErrorFrame(messageID string, callErr *CallError) *Frame {
	details := callErr.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}
	return &Frame{
		Type:             MessageTypeCallError,
		MessageID:        messageID,
		ErrorCode:        callErr.Code,
		ErrorDescription: callErr.Description,
		ErrorDetails:     details,
	}
}

// Marshal encodes a frame as its wire tuple.
func Marshal(f *Frame) ([]byte, error) {
	switch f.Type {
	case MessageTypeCall:
		payload := f.Payload
		if len(payload) == 0 {
			payload = json.RawMessage(`{}`)
		}
		return json.Marshal([]interface{}{int(f.Type), f.MessageID, f.Action, payload})
	case MessageTypeCallResult:
		payload := f.Payload
		if len(payload) == 0 {
			payload = json.RawMessage(`{}`)
		}
		return json.Marshal([]interface{}{int(f.Type), f.MessageID, payload})
	case MessageTypeCallError:
		details := f.ErrorDetails
		if len(details) == 0 {
			details = json.RawMessage(`{}`)
		}
		return json.Marshal([]interface{}{int(f.Type), f.MessageID, string(f.ErrorCode), f.ErrorDescription, details})
	default:
		return nil, fmt.Errorf("ocpp: cannot marshal message type %d", f.Type)
	}
}

// Unmarshal decodes a wire tuple into a Frame. It enforces the framing
// rules only; payload validation is a separate pass (Validate).
func Unmarshal(data []byte) (*Frame, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("ocpp: frame is not valid UTF-8")
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("ocpp: frame is not a JSON array: %w", err)
	}
	if len(elements) < 3 {
		return nil, fmt.Errorf("ocpp: frame has %d elements, need at least 3", len(elements))
	}

	var msgType int
	if err := json.Unmarshal(elements[0], &msgType); err != nil {
		return nil, fmt.Errorf("ocpp: messageTypeId is not a number: %w", err)
	}

	var messageID string
	if err := json.Unmarshal(elements[1], &messageID); err != nil {
		return nil, fmt.Errorf("ocpp: messageId is not a string: %w", err)
	}
	if messageID == "" || len(messageID) > MaxMessageIDLength {
		return nil, fmt.Errorf("ocpp: messageId length %d out of range [1,%d]", len(messageID), MaxMessageIDLength)
	}

	switch MessageType(msgType) {
	case MessageTypeCall:
		if len(elements) != 4 {
			return nil, fmt.Errorf("ocpp: CALL frame has %d elements, want 4", len(elements))
		}
		var action string
		if err := json.Unmarshal(elements[2], &action); err != nil {
			return nil, fmt.Errorf("ocpp: action is not a string: %w", err)
		}
		if !isJSONObject(elements[3]) {
			return nil, fmt.Errorf("ocpp: CALL payload is not a JSON object")
		}
		return &Frame{Type: MessageTypeCall, MessageID: messageID, Action: action, Payload: elements[3]}, nil

	case MessageTypeCallResult:
		if len(elements) != 3 {
			return nil, fmt.Errorf("ocpp: CALLRESULT frame has %d elements, want 3", len(elements))
		}
		if !isJSONObject(elements[2]) {
			return nil, fmt.Errorf("ocpp: CALLRESULT payload is not a JSON object")
		}
		return &Frame{Type: MessageTypeCallResult, MessageID: messageID, Payload: elements[2]}, nil

	case MessageTypeCallError:
		if len(elements) != 5 {
			return nil, fmt.Errorf("ocpp: CALLERROR frame has %d elements, want 5", len(elements))
		}
		var code, description string
		if err := json.Unmarshal(elements[2], &code); err != nil {
			return nil, fmt.Errorf("ocpp: errorCode is not a string: %w", err)
		}
		if err := json.Unmarshal(elements[3], &description); err != nil {
			return nil, fmt.Errorf("ocpp: errorDescription is not a string: %w", err)
		}
		return &Frame{
			Type:             MessageTypeCallError,
			MessageID:        messageID,
			ErrorCode:        ErrorCode(code),
			ErrorDescription: description,
			ErrorDetails:     elements[4],
		}, nil

	default:
		return nil, fmt.Errorf("ocpp: unknown messageTypeId %d", msgType)
	}
}

func isJSONObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
