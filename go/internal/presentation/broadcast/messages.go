package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/altarpro/altarpro/go/internal/presentation/state"
)

// Kind is the type tag of a broadcast message.
type Kind string

const (
	KindSettings Kind = "SETTINGS"
	KindDeck     Kind = "DECK"
	KindIndex    Kind = "INDEX"
)

var (
	ErrUnknownMessage   = errors.New("unknown message type")
	ErrMalformedMessage = errors.New("malformed message")
)

// Message is a decoded broadcast. Exactly one payload field is meaningful,
// selected by Kind.
type Message struct {
	Kind     Kind
	Settings state.SettingsPatch
	Deck     state.Deck
	Index    int
}

// EncodeSettings builds a SETTINGS message carrying only display keys.
func EncodeSettings(s state.Settings) ([]byte, error) {
	return json.Marshal(struct {
		Type     Kind           `json:"type"`
		Settings state.Settings `json:"settings"`
	}{KindSettings, s.Display()})
}

// EncodeDeck builds a DECK message; a nil deck encodes as null.
func EncodeDeck(d state.Deck) ([]byte, error) {
	return json.Marshal(struct {
		Type Kind       `json:"type"`
		Deck state.Deck `json:"deck"`
	}{KindDeck, d.Normalize()})
}

// EncodeIndex builds an INDEX message.
func EncodeIndex(n int) ([]byte, error) {
	return json.Marshal(struct {
		Type  Kind `json:"type"`
		Index int  `json:"index"`
	}{KindIndex, n})
}

// PeekKind returns the type tag without decoding the payload.
func PeekKind(payload []byte) Kind {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return ""
	}
	return head.Type
}

// Decode parses a payload. Unknown types return ErrUnknownMessage and
// payloads with the wrong shape return ErrMalformedMessage; receivers drop
// both.
func Decode(payload []byte) (Message, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope == nil {
		return Message{}, fmt.Errorf("%w: not an object", ErrMalformedMessage)
	}

	var kind Kind
	if err := json.Unmarshal(envelope["type"], &kind); err != nil {
		return Message{}, fmt.Errorf("%w: type", ErrMalformedMessage)
	}

	msg := Message{Kind: kind}
	switch kind {
	case KindSettings:
		raw, ok := envelope["settings"]
		if !ok || string(raw) == "null" {
			return Message{}, fmt.Errorf("%w: settings missing", ErrMalformedMessage)
		}
		if err := json.Unmarshal(raw, &msg.Settings); err != nil {
			return Message{}, fmt.Errorf("%w: settings: %v", ErrMalformedMessage, err)
		}

	case KindDeck:
		raw, ok := envelope["deck"]
		if ok {
			if err := json.Unmarshal(raw, &msg.Deck); err != nil {
				return Message{}, fmt.Errorf("%w: deck: %v", ErrMalformedMessage, err)
			}
		}

	case KindIndex:
		var n float64
		raw, ok := envelope["index"]
		if !ok {
			return Message{}, fmt.Errorf("%w: index missing", ErrMalformedMessage)
		}
		if err := json.Unmarshal(raw, &n); err != nil || n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return Message{}, fmt.Errorf("%w: index must be an integer", ErrMalformedMessage)
		}
		msg.Index = int(n)

	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessage, kind)
	}
	return msg, nil
}
