// Package perror defines the error taxonomy pathfinder surfaces to clients.
//
// Adapted from boulder's errors.BoulderError (coarse Type enum plus Detail
// string), substituting the CA-specific kinds for the five kinds in the
// proxy's error taxonomy.
package perror

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is a coarse category for a ProxyError.
type Kind int

const (
	KindDecoding Kind = iota
	KindEndpointNotFound
	KindAuthentication
	KindMicroservice
	KindMessageBroker
)

func (k Kind) String() string {
	switch k {
	case KindDecoding:
		return "DecodingError"
	case KindEndpointNotFound:
		return "EndpointNotFound"
	case KindAuthentication:
		return "AuthenticationError"
	case KindMicroservice:
		return "MicroserviceError"
	case KindMessageBroker:
		return "MessageBrokerError"
	default:
		return "UnknownError"
	}
}

// ProxyError is the error type every boundary of the request pipeline
// converts its failures into before handing them to the envelope codec.
type ProxyError struct {
	Kind Kind

	// Detail is the human-readable message for every kind except
	// KindMicroservice, where the verbatim upstream JSON goes in Microservice
	// instead.
	Detail string

	// Microservice holds the verbatim error JSON returned by a microservice,
	// set only when Kind == KindMicroservice.
	Microservice json.RawMessage
}

func (e *ProxyError) Error() string {
	if e.Kind == KindMicroservice {
		return fmt.Sprintf("microservice error: %s", string(e.Microservice))
	}
	return e.Detail
}

// Is reports whether err is a *ProxyError of the given kind.
func Is(err error, kind Kind) bool {
	var pe *ProxyError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == kind
}

func New(kind Kind, format string, args ...interface{}) *ProxyError {
	return &ProxyError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Decoding reports a malformed inbound frame (§7 DecodingError).
func Decoding(format string, args ...interface{}) *ProxyError {
	return New(KindDecoding, format, args...)
}

// EndpointNotFound reports a URL absent from the endpoint registry.
func EndpointNotFound(format string, args ...interface{}) *ProxyError {
	return New(KindEndpointNotFound, format, args...)
}

// Authentication reports a failure in the auth middleware that is not itself
// a microservice-originated error.
func Authentication(format string, args ...interface{}) *ProxyError {
	return New(KindAuthentication, format, args...)
}

// MessageBroker reports any AMQP-step failure (connect, declare, bind,
// publish, consume, ack, unbind, delete, close).
func MessageBroker(format string, args ...interface{}) *ProxyError {
	return New(KindMessageBroker, format, args...)
}

// Microservice wraps a verbatim non-null `error` field returned by a
// microservice (auth or target) so it can be forwarded to the client
// unmodified inside the standard error envelope.
func Microservice(raw json.RawMessage) *ProxyError {
	return &ProxyError{Kind: KindMicroservice, Microservice: raw}
}
