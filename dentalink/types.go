package dentalink

import (
	"encoding/json"
	"time"
)

// Wire type tags. Every message in either direction is a JSON envelope
// with a "type" discriminator and a "timestamp".
const (
	typeChatMessage        = "chat_message"
	typeRoomJoined         = "room_joined"
	typeAppointmentCreated = "appointment_created"
	typeNotificationAlert  = "notification_alert"
	typeError              = "error"

	typeJoinRoom  = "join_room"
	typeLeaveRoom = "leave_room"
)

// ServerMessage is the decoded server-to-client union. Switching on the
// concrete type covers every message kind the server can deliver.
type ServerMessage interface {
	serverMessage()
}

// ChatMessageEvent is a chat message delivered to a room.
type ChatMessageEvent struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	User      string    `json:"user"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomJoinedEvent confirms a room subscription.
type RoomJoinedEvent struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// AppointmentCreatedEvent announces a newly booked appointment.
type AppointmentCreatedEvent struct {
	AppointmentID string    `json:"appointment_id"`
	PatientID     string    `json:"patient_id"`
	Title         string    `json:"title"`
	StartsAt      time.Time `json:"starts_at"`
	Timestamp     time.Time `json:"timestamp"`
}

// NotificationAlertEvent is a generic alert for the notification center.
type NotificationAlertEvent struct {
	ID        string    `json:"id,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity,omitempty"`
	PatientID string    `json:"patient_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ServerErrorEvent is an error envelope sent by the server.
type ServerErrorEvent struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (ChatMessageEvent) serverMessage()        {}
func (RoomJoinedEvent) serverMessage()         {}
func (AppointmentCreatedEvent) serverMessage() {}
func (NotificationAlertEvent) serverMessage()  {}
func (ServerErrorEvent) serverMessage()        {}

// DecodeServerMessage parses a wire envelope into its typed variant.
// Unknown or malformed payloads return an error; the connection itself
// never fails on a bad message.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, WrapError(ErrorDecode, "malformed envelope", err)
	}
	switch head.Type {
	case typeChatMessage:
		var ev ChatMessageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, WrapError(ErrorDecode, "bad chat_message payload", err)
		}
		return ev, nil
	case typeRoomJoined:
		var ev RoomJoinedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, WrapError(ErrorDecode, "bad room_joined payload", err)
		}
		return ev, nil
	case typeAppointmentCreated:
		var ev AppointmentCreatedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, WrapError(ErrorDecode, "bad appointment_created payload", err)
		}
		return ev, nil
	case typeNotificationAlert:
		var ev NotificationAlertEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, WrapError(ErrorDecode, "bad notification_alert payload", err)
		}
		return ev, nil
	case typeError:
		var ev ServerErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, WrapError(ErrorDecode, "bad error payload", err)
		}
		return ev, nil
	default:
		return nil, NewError(ErrorUnknownMessage, "unknown message type "+head.Type)
	}
}

// ClientMessage is the client-to-server union.
type ClientMessage interface {
	clientMessage()
}

// JoinRoom subscribes to a room.
type JoinRoom struct {
	RoomID string
}

// LeaveRoom unsubscribes from a room.
type LeaveRoom struct {
	RoomID string
}

// ChatPost publishes a chat message to a room.
type ChatPost struct {
	RoomID  string
	Content string
}

func (JoinRoom) clientMessage()  {}
func (LeaveRoom) clientMessage() {}
func (ChatPost) clientMessage()  {}

type roomEnvelope struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"room_id"`
	Timestamp time.Time `json:"timestamp"`
}

type chatEnvelope struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"room_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// encodeClientMessage stamps the message with the send time and marshals
// it into its wire envelope.
func encodeClientMessage(msg ClientMessage, at time.Time) ([]byte, error) {
	switch m := msg.(type) {
	case JoinRoom:
		return json.Marshal(roomEnvelope{Type: typeJoinRoom, RoomID: m.RoomID, Timestamp: at})
	case LeaveRoom:
		return json.Marshal(roomEnvelope{Type: typeLeaveRoom, RoomID: m.RoomID, Timestamp: at})
	case ChatPost:
		return json.Marshal(chatEnvelope{Type: typeChatMessage, RoomID: m.RoomID, Content: m.Content, Timestamp: at})
	default:
		return nil, NewError(ErrorEncode, "unsupported client message")
	}
}
