// Package wire implements the ASCII request/reply codec shared by the
// hub and its process-control peers. Messages are semicolon-delimited
// with at most three fields: KEY;TYPE;JSONBODY.
package wire

import (
	"errors"
	"strings"
)

// Key is the first wire field: the direction of a message.
type Key string

const (
	KeyGet  Key = "GET"
	KeyPost Key = "POST"
	KeyRep  Key = "REP"
)

// ReqType is the closed set of recognized request types. Dispatch is a
// switch over these values; anything else routes to the deny reply.
type ReqType string

const (
	TypeLogin       ReqType = "login"
	TypeSensors     ReqType = "sensors"
	TypeStations    ReqType = "stations"
	TypeTrainsPLC   ReqType = "trainsPlc"
	TypeTrainsRTU   ReqType = "trainsRtu"
	TypeSignals     ReqType = "signals"
	TypePowerLink   ReqType = "powerLink"
	TypeMetroTotals ReqType = "metroTotals"
	TypeDeny        ReqType = "deny"
)

// ErrMalformed reports a datagram that does not split into the three
// KEY;TYPE;BODY fields. The accompanying Message is still usable: it is
// the harmless empty triplet that routes to no handler.
var ErrMalformed = errors.New("wire: malformed message")

// Message is one decoded wire message. Body is the raw JSON payload.
type Message struct {
	Key  Key
	Type ReqType
	Body string
}

// Decode splits raw into at most three semicolon-delimited fields.
// Malformed input never fails hard: the returned Message degrades to
// ("", "", "{}") alongside ErrMalformed so the caller can log and move
// on while the empty triplet falls through to the deny path.
func Decode(raw []byte) (Message, error) {
	parts := strings.SplitN(string(raw), ";", 3)
	if len(parts) != 3 {
		return Message{Key: "", Type: "", Body: "{}"}, ErrMalformed
	}
	return Message{
		Key:  Key(strings.TrimSpace(parts[0])),
		Type: ReqType(strings.TrimSpace(parts[1])),
		Body: parts[2],
	}, nil
}

// Encode renders a message in wire form.
func Encode(key Key, typ ReqType, body string) []byte {
	return []byte(string(key) + ";" + string(typ) + ";" + body)
}

// DenyReply is the reply for unrecognized key/type combinations.
func DenyReply() []byte {
	return Encode(KeyRep, TypeDeny, "{}")
}
