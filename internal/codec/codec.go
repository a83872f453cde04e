// Package codec turns WebSocket frames into validated request envelopes and
// back, grounded on the original proxy's engine/serializer.rs and
// engine/utils.rs: parse the frame as UTF-8 text, parse that as JSON, then
// reject anything missing a `url` or carrying a reserved `microservice` key.
package codec

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/openmatchmaking/pathfinder/internal/perror"
)

// Envelope is one decoded client request.
type Envelope struct {
	URL string `json:"url"`

	// Token is the JWT the JWT auth middleware verifies before the request
	// is forwarded; absent for endpoints with token_required=false.
	Token string `json:"token"`

	// EventName becomes the AMQP correlation_id for the round trip; absent
	// requests correlate under the literal string "null", matching the
	// original's fallback.
	EventName string `json:"event-name"`

	// Content is forwarded to the target microservice verbatim as the
	// message body.
	Content json.RawMessage `json:"content"`

	// Permissions and UserID feed the permissions/user_id headers the RPC
	// engine attaches to the outbound publish.
	Permissions string `json:"permissions"`
	UserID      string `json:"user_id"`
}

// errorEnvelope is the wire shape of every error pathfinder reports to a
// client, per the proxy's wrap_an_error helper generalized with a type tag.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Type    string          `json:"type"`
	Details json.RawMessage `json:"details"`
}

// Deserialize parses one inbound WebSocket frame into an Envelope. Both text
// and binary frames are accepted and treated identically once their bytes
// are confirmed to be valid UTF-8, mirroring Serializer::parse_into_text
// (which converts a valid-UTF-8 binary frame to text rather than rejecting
// it); frames that aren't valid UTF-8 are rejected. A frame with no JSON
// `url` key, a null `url`, or an explicit `microservice` key is rejected as
// malformed, mirroring Serializer::validate_json.
func Deserialize(messageType int, data []byte) (*Envelope, error) {
	if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
		return nil, perror.Decoding("Message must be a text or binary frame")
	}
	if len(data) == 0 {
		return nil, perror.Decoding("Message is empty")
	}
	if !utf8.Valid(data) {
		return nil, perror.Decoding("Message is not valid UTF-8")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, perror.Decoding("Malformed JSON: %s", err)
	}

	urlRaw, ok := raw["url"]
	if !ok || isJSONNull(urlRaw) {
		return nil, perror.Decoding("Key `url` is missing or value is `null`")
	}
	if _, ok := raw["microservice"]; ok {
		return nil, perror.Decoding("Key `microservice` must be not specified")
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, perror.Decoding("Malformed JSON: %s", err)
	}
	return &env, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

// CorrelationID returns the AMQP correlation_id to use for env's round trip:
// its event name, or the literal "null" when absent, per the original's
// `message["event-name"].as_str().unwrap_or("null")`.
func CorrelationID(env *Envelope) string {
	if env.EventName == "" {
		return "null"
	}
	return env.EventName
}

// Serialize wraps a verbatim microservice response body into a text frame
// ready to hand to a websocket.Conn.
func Serialize(body json.RawMessage) []byte {
	return body
}

// WrapError renders err as the standard `{"error": {"type": ..., "details":
// ...}}` envelope. Non-ProxyError values are reported as an opaque
// MessageBrokerError, since every boundary that can fail is expected to
// produce a *perror.ProxyError before reaching this function.
func WrapError(err error) []byte {
	kind := perror.KindMessageBroker
	var details json.RawMessage

	if p, ok := asProxyError(err); ok {
		kind = p.Kind
		if p.Kind == perror.KindMicroservice {
			details = p.Microservice
		} else {
			b, _ := json.Marshal(p.Detail)
			details = b
		}
	} else {
		b, _ := json.Marshal(err.Error())
		details = b
	}

	out, marshalErr := json.Marshal(errorEnvelope{Error: errorBody{Type: kind.String(), Details: details}})
	if marshalErr != nil {
		return []byte(`{"error":{"type":"MessageBrokerError","details":"failed to encode error"}}`)
	}
	return out
}

func asProxyError(err error) (*perror.ProxyError, bool) {
	pe, ok := err.(*perror.ProxyError)
	return pe, ok
}
