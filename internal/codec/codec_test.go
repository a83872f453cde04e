package codec

import (
	"encoding/json"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/openmatchmaking/pathfinder/internal/perror"
)

func TestDeserializeValid(t *testing.T) {
	msg := []byte(`{"url": "test", "content": {"a": 1}}`)
	env, err := Deserialize(websocket.TextMessage, msg)
	if err != nil {
		t.Fatalf("Deserialize() returned error: %v", err)
	}
	if env.URL != "test" {
		t.Errorf("URL = %q, want test", env.URL)
	}
}

func TestDeserializeAcceptsValidUTF8Binary(t *testing.T) {
	msg := []byte(`{"url": "test", "content": {"a": 1}}`)
	env, err := Deserialize(websocket.BinaryMessage, msg)
	if err != nil {
		t.Fatalf("Deserialize() of a valid-UTF-8 binary frame returned error: %v", err)
	}
	if env.URL != "test" {
		t.Errorf("URL = %q, want test", env.URL)
	}
}

func TestDeserializeRejectsInvalidUTF8Binary(t *testing.T) {
	data := []byte{0, 159, 146, 150}
	if _, err := Deserialize(websocket.BinaryMessage, data); err == nil {
		t.Error("Deserialize() of a non-UTF-8 binary frame returned nil error")
	}
}

func TestDeserializeRejectsEmpty(t *testing.T) {
	if _, err := Deserialize(websocket.TextMessage, nil); err == nil {
		t.Error("Deserialize() of an empty frame returned nil error")
	}
}

func TestDeserializeRejectsInvalidJSON(t *testing.T) {
	if _, err := Deserialize(websocket.TextMessage, []byte(`{"url": "test"`)); err == nil {
		t.Error("Deserialize() of malformed JSON returned nil error")
	}
}

func TestDeserializeRejectsMissingURL(t *testing.T) {
	if _, err := Deserialize(websocket.TextMessage, []byte(`{"test": "value"}`)); err == nil {
		t.Error("Deserialize() with no url key returned nil error")
	}
}

func TestDeserializeRejectsNullURL(t *testing.T) {
	if _, err := Deserialize(websocket.TextMessage, []byte(`{"url": null}`)); err == nil {
		t.Error("Deserialize() with a null url returned nil error")
	}
}

func TestDeserializeRejectsMicroserviceKey(t *testing.T) {
	msg := []byte(`{"url": "value", "microservice": "some microservice"}`)
	if _, err := Deserialize(websocket.TextMessage, msg); err == nil {
		t.Error("Deserialize() with a microservice key returned nil error")
	}
}

func TestCorrelationIDDefaultsToNull(t *testing.T) {
	env := &Envelope{}
	if got := CorrelationID(env); got != "null" {
		t.Errorf("CorrelationID() = %q, want null", got)
	}
}

func TestCorrelationIDUsesEventName(t *testing.T) {
	env := &Envelope{EventName: "group.created"}
	if got := CorrelationID(env); got != "group.created" {
		t.Errorf("CorrelationID() = %q, want group.created", got)
	}
}

func TestWrapErrorProxyError(t *testing.T) {
	out := WrapError(perror.Decoding("bad request"))
	var decoded map[string]map[string]interface{}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("WrapError() produced invalid JSON: %v", err)
	}
	if decoded["error"]["type"] != "DecodingError" {
		t.Errorf("type = %v, want DecodingError", decoded["error"]["type"])
	}
}

func TestWrapErrorMicroservice(t *testing.T) {
	raw := json.RawMessage(`{"code": 7}`)
	out := WrapError(perror.Microservice(raw))
	var decoded struct {
		Error struct {
			Type    string          `json:"type"`
			Details json.RawMessage `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("WrapError() produced invalid JSON: %v", err)
	}
	if decoded.Error.Type != "MicroserviceError" {
		t.Errorf("type = %q, want MicroserviceError", decoded.Error.Type)
	}
	if string(decoded.Error.Details) != string(raw) {
		t.Errorf("details = %s, want %s", decoded.Error.Details, raw)
	}
}
