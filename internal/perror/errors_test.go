package perror

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindDecoding:         "DecodingError",
		KindEndpointNotFound: "EndpointNotFound",
		KindAuthentication:   "AuthenticationError",
		KindMicroservice:     "MicroserviceError",
		KindMessageBroker:    "MessageBrokerError",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func TestIs(t *testing.T) {
	err := Decoding("The `url` field is missing or value is `null`")
	if !Is(err, KindDecoding) {
		t.Error("Is(err, KindDecoding) = false, want true")
	}
	if Is(err, KindAuthentication) {
		t.Error("Is(err, KindAuthentication) = true, want false")
	}
	if Is(errors.New("plain error"), KindDecoding) {
		t.Error("Is(plain error, KindDecoding) = true, want false")
	}
}

func TestMicroserviceError(t *testing.T) {
	raw := json.RawMessage(`{"code": 42}`)
	err := Microservice(raw)
	if err.Kind != KindMicroservice {
		t.Fatalf("Kind = %v, want KindMicroservice", err.Kind)
	}
	if string(err.Microservice) != string(raw) {
		t.Errorf("Microservice = %s, want %s", err.Microservice, raw)
	}
	if err.Error() == "" {
		t.Error("Error() returned an empty string")
	}
}

func TestNewFormatsDetail(t *testing.T) {
	err := EndpointNotFound("Endpoint %q was not found", "/nope")
	want := `Endpoint "/nope" was not found`
	if err.Detail != want {
		t.Errorf("Detail = %q, want %q", err.Detail, want)
	}
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
