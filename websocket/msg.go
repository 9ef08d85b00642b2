package websocket

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/laguz/command"
	"github.com/aukilabs/laguz/spatial"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	ErrTypeMalformedMsg      = "malformed-msg"
	ErrTypeFacilityNotJoined = "facility-not-joined"
)

const (
	MsgTypePing            = "ping"
	MsgTypePong            = "pong"
	MsgTypeJoin            = "join"
	MsgTypeJoinResponse    = "join_response"
	MsgTypeLeave           = "leave"
	MsgTypeLeaveResponse   = "leave_response"
	MsgTypeCommandResponse = "command_response"
	MsgTypeLayoutChanged   = "layout_changed"
	MsgTypeFacilityClosed  = "facility_closed"
	MsgTypeError           = "error"

	MsgTypePlaceObject       = "place_object"
	MsgTypePlaceWall         = "place_wall"
	MsgTypeCreateRoom        = "create_room"
	MsgTypeAlignObjects      = "align_objects"
	MsgTypeValidatePlacement = "validate_placement"
	MsgTypeMoveObject        = "move_object"
	MsgTypeRemoveObject      = "remove_object"
	MsgTypeClear             = "clear"
)

const (
	ErrorCodeBadRequest          = "bad_request"
	ErrorCodeNotFound            = "not_found"
	ErrorCodeAlreadyJoined       = "already_joined"
	ErrorCodeNotJoined           = "not_joined"
	ErrorCodeUnknownMsg          = "unknown_message"
	ErrorCodeInternalServerError = "internal_server_error"
)

// IsCommand reports whether the given message type is a layout command.
func IsCommand(msgType string) bool {
	switch msgType {
	case MsgTypePlaceObject,
		MsgTypePlaceWall,
		MsgTypeCreateRoom,
		MsgTypeAlignObjects,
		MsgTypeValidatePlacement,
		MsgTypeMoveObject,
		MsgTypeRemoveObject,
		MsgTypeClear:
		return true
	default:
		return false
	}
}

// Msg is a JSON text frame. Its header is decoded and the raw frame is kept
// to decode the message specific fields.
type Msg struct {
	Type       string `json:"type"`
	RequestID  string `json:"requestId,omitempty"`
	FacilityID string `json:"facilityId,omitempty"`

	raw []byte
}

// MsgFromBytes decodes the header of the given frame.
func MsgFromBytes(b []byte) (Msg, error) {
	var msg Msg
	if err := json.Unmarshal(b, &msg); err != nil {
		return Msg{}, errors.New("decoding message failed").
			WithType(ErrTypeMalformedMsg).
			Wrap(err)
	}
	if msg.Type == "" {
		return Msg{}, errors.New("message has no type").WithType(ErrTypeMalformedMsg)
	}

	msg.raw = b
	return msg, nil
}

// MsgFrom encodes the given value into a message.
func MsgFrom(v any) (Msg, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Msg{}, errors.New("encoding message failed").Wrap(err)
	}
	return MsgFromBytes(b)
}

// DataTo decodes the whole frame into v.
func (m Msg) DataTo(v any) error {
	if err := json.Unmarshal(m.raw, v); err != nil {
		return errors.New("decoding message data failed").
			WithTag("msg_type", m.Type).
			WithType(ErrTypeMalformedMsg).
			Wrap(err)
	}
	return nil
}

func (m Msg) Bytes() []byte {
	return m.raw
}

// Receiver receives a message and returns its size.
type Receiver func() (Msg, int, error)

// Sender sends a message and returns the number of bytes written.
type Sender func(Msg) (int, error)

// ResponseSender sends messages to the connected client.
type ResponseSender interface {
	// Encodes and sends the given value.
	Send(v any)

	SendMsg(Msg)
}

// NewReceiver returns a receiver that reads text frames from the given
// connection.
func NewReceiver(conn *websocket.Conn) Receiver {
	return func() (Msg, int, error) {
		var b []byte
		if err := websocket.Message.Receive(conn, &b); err != nil {
			return Msg{}, 0, err
		}

		msg, err := MsgFromBytes(b)
		return msg, len(b), err
	}
}

// NewSender returns a sender that writes text frames to the given connection.
func NewSender(conn *websocket.Conn) Sender {
	return func(msg Msg) (int, error) {
		if err := websocket.Message.Send(conn, string(msg.raw)); err != nil {
			return 0, err
		}
		return len(msg.raw), nil
	}
}

type Request struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
}

type Response struct {
	Type      string    `json:"type"`
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorResponse struct {
	Type      string    `json:"type"`
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Code      string    `json:"code"`
	Message   string    `json:"message,omitempty"`
}

type JoinRequest struct {
	Type       string `json:"type"`
	RequestID  string `json:"requestId,omitempty"`
	FacilityID string `json:"facilityId,omitempty"`

	// The name of the facility created when FacilityID is empty.
	Name string `json:"name,omitempty"`
}

type JoinResponse struct {
	Type         string           `json:"type"`
	RequestID    string           `json:"requestId,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
	FacilityID   string           `json:"facilityId"`
	FacilityUUID string           `json:"facilityUuid"`
	Name         string           `json:"name"`
	Bounds       spatial.AABB     `json:"bounds"`
	Objects      []spatial.Object `json:"objects"`
}

type PlaceObjectRequest struct {
	Type         string               `json:"type"`
	RequestID    string               `json:"requestId,omitempty"`
	ObjectType   string               `json:"objectType"`
	Position     spatial.Vector3      `json:"position"`
	AutoPosition bool                 `json:"autoPosition"`
	Options      command.PlaceOptions `json:"options"`
}

type PlaceWallRequest struct {
	Type      string              `json:"type"`
	RequestID string              `json:"requestId,omitempty"`
	Start     spatial.Vector3     `json:"start"`
	End       spatial.Vector3     `json:"end"`
	Options   command.WallOptions `json:"options"`
}

type CreateRoomRequest struct {
	Type      string              `json:"type"`
	RequestID string              `json:"requestId,omitempty"`
	Corners   []spatial.Vector3   `json:"corners"`
	Options   command.RoomOptions `json:"options"`
}

type AlignObjectsRequest struct {
	Type      string            `json:"type"`
	RequestID string            `json:"requestId,omitempty"`
	ObjectIDs []string          `json:"objectIds"`
	Alignment command.Alignment `json:"alignment"`
}

type MoveObjectRequest struct {
	Type      string               `json:"type"`
	RequestID string               `json:"requestId,omitempty"`
	ObjectID  string               `json:"objectId"`
	Position  spatial.Vector3      `json:"position"`
	Options   command.PlaceOptions `json:"options"`
}

type RemoveObjectRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	ObjectID  string `json:"objectId"`
}

type CommandResponse struct {
	Type      string         `json:"type"`
	RequestID string         `json:"requestId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Command   string         `json:"command"`
	Result    command.Result `json:"result"`
}

type LayoutChanged struct {
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	FacilityID string    `json:"facilityId"`
	Command    string    `json:"command"`
	ObjectIDs  []string  `json:"objectIds"`
}

type FacilityClosed struct {
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	FacilityID string    `json:"facilityId"`
}
