package auth

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/jmhodges/clock"

	"github.com/openmatchmaking/pathfinder/internal/broker/brokertest"
	"github.com/openmatchmaking/pathfinder/internal/codec"
	"github.com/openmatchmaking/pathfinder/internal/perror"
	"github.com/openmatchmaking/pathfinder/internal/plog"
	"github.com/openmatchmaking/pathfinder/internal/pmetrics"
)

// fakeJWT builds a structurally valid (but unsigned/unverified) compact JWS
// so it passes JWTMiddleware's up-front josejwt.ParseSigned check without a
// real signing key; actual signature verification is delegated to the
// auth.token.verify sub-RPC, never performed in-process.
func fakeJWT() string {
	enc := base64.RawURLEncoding.EncodeToString
	header := enc([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := enc([]byte(`{"sub":"u-1"}`))
	sig := enc([]byte("deadbeef"))
	return header + "." + payload + "." + sig
}

func TestNullMiddlewareReturnsEmptyHeaders(t *testing.T) {
	m := NullMiddleware{}
	headers, err := m.Process(context.Background(), &codec.Envelope{}, nil, plog.NewNop(), pmetrics.NewNoopScope(), clock.NewFake())
	if err != nil {
		t.Fatalf("Process() returned error: %v", err)
	}
	if len(headers) != 0 {
		t.Errorf("headers = %v, want empty", headers)
	}
}

func TestJWTMiddlewareRejectsMissingToken(t *testing.T) {
	j := JWTMiddleware{}
	_, err := j.Process(context.Background(), &codec.Envelope{}, nil, plog.NewNop(), pmetrics.NewNoopScope(), clock.NewFake())
	if !perror.Is(err, perror.KindAuthentication) {
		t.Fatalf("Process() error = %v, want KindAuthentication", err)
	}
}

func TestJWTMiddlewareRejectsMalformedToken(t *testing.T) {
	j := JWTMiddleware{}
	env := &codec.Envelope{Token: "not-a-jwt"}
	_, err := j.Process(context.Background(), env, nil, plog.NewNop(), pmetrics.NewNoopScope(), clock.NewFake())
	if !perror.Is(err, perror.KindAuthentication) {
		t.Fatalf("Process() error = %v, want KindAuthentication", err)
	}
}

func TestJWTMiddlewareRejectsInvalidToken(t *testing.T) {
	session, fc := brokertest.NewSession()
	fc.Deliveries <- brokertest.NewDelivery([]byte(`{"error":null,"content":{"is_valid":false}}`))

	j := JWTMiddleware{RequestTimeout: time.Second}
	env := &codec.Envelope{Token: fakeJWT()}
	_, err := j.Process(context.Background(), env, session, plog.NewNop(), pmetrics.NewNoopScope(), clock.NewFake())
	if !perror.Is(err, perror.KindAuthentication) {
		t.Fatalf("Process() error = %v, want KindAuthentication", err)
	}

	declare, _, _, _, publish, _ := fc.Calls()
	if declare != 1 || publish != 1 {
		t.Errorf("calls = declare=%d publish=%d, want both 1 (only the verify sub-RPC should run)", declare, publish)
	}
}

func TestJWTMiddlewareSurfacesVerifyMicroserviceError(t *testing.T) {
	session, fc := brokertest.NewSession()
	fc.Deliveries <- brokertest.NewDelivery([]byte(`{"error":{"code":7},"content":null}`))

	j := JWTMiddleware{RequestTimeout: time.Second}
	env := &codec.Envelope{Token: fakeJWT()}
	_, err := j.Process(context.Background(), env, session, plog.NewNop(), pmetrics.NewNoopScope(), clock.NewFake())
	if !perror.Is(err, perror.KindMicroservice) {
		t.Fatalf("Process() error = %v, want KindMicroservice", err)
	}
}

func TestJWTMiddlewareVerifyThenProfileMergesPermissions(t *testing.T) {
	session, fc := brokertest.NewSession()
	fc.Deliveries <- brokertest.NewDelivery([]byte(`{"error":null,"content":{"is_valid":true}}`))
	fc.Deliveries <- brokertest.NewDelivery([]byte(`{"error":null,"content":{"permissions":["play","admin"]}}`))

	j := JWTMiddleware{RequestTimeout: time.Second}
	env := &codec.Envelope{Token: fakeJWT()}
	headers, err := j.Process(context.Background(), env, session, plog.NewNop(), pmetrics.NewNoopScope(), clock.NewFake())
	if err != nil {
		t.Fatalf("Process() returned error: %v", err)
	}
	if headers["permissions"] != "play;admin" {
		t.Errorf("permissions = %q, want play;admin", headers["permissions"])
	}

	declare, _, _, _, publish, _ := fc.Calls()
	if declare != 2 || publish != 2 {
		t.Errorf("calls = declare=%d publish=%d, want both 2 (verify then profile)", declare, publish)
	}
}

func TestIsNullJSON(t *testing.T) {
	if !isNullJSON(nil) {
		t.Error("isNullJSON(nil) = false, want true")
	}
	if !isNullJSON([]byte("null")) {
		t.Error(`isNullJSON("null") = false, want true`)
	}
	if isNullJSON([]byte(`{"code":1}`)) {
		t.Error("isNullJSON(object) = true, want false")
	}
}
