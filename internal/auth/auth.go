// Package auth implements the two auth middleware variants of §4.4: a null
// middleware that contributes no headers, and a JWT middleware that performs
// the verify/profile sub-RPC sequence against a fixed pair of auth
// exchanges, grounded on the original proxy's
// engine/middleware/{empty,jwt}.rs.
package auth

import (
	"context"
	"encoding/json"

	"github.com/jmhodges/clock"

	"github.com/openmatchmaking/pathfinder/internal/broker"
	"github.com/openmatchmaking/pathfinder/internal/codec"
	"github.com/openmatchmaking/pathfinder/internal/plog"
	"github.com/openmatchmaking/pathfinder/internal/pmetrics"
)

// Headers is the extra AMQP header set a middleware contributes; these
// overwrite the RPC engine's default headers on key conflict (§4.5 step 3).
type Headers map[string]string

// Middleware authenticates (or passes through) one request envelope before
// the RPC engine publishes it to the target microservice.
type Middleware interface {
	Process(ctx context.Context, env *codec.Envelope, session *broker.Session, log plog.Logger, m pmetrics.Scope, clk clock.Clock) (Headers, error)
}

// NullMiddleware is used for endpoints with token_required=false; it never
// touches the broker, satisfying P6.
type NullMiddleware struct{}

func (NullMiddleware) Process(context.Context, *codec.Envelope, *broker.Session, plog.Logger, pmetrics.Scope, clock.Clock) (Headers, error) {
	return Headers{}, nil
}

// verifyResponse is the fixed-shape reply the auth.token.verify sub-RPC
// returns.
type verifyResponse struct {
	Error   json.RawMessage `json:"error"`
	Content *struct {
		IsValid bool `json:"is_valid"`
	} `json:"content"`
}

// profileResponse is the fixed-shape reply the auth.users.retrieve sub-RPC
// returns.
type profileResponse struct {
	Error   json.RawMessage `json:"error"`
	Content *struct {
		Permissions []string `json:"permissions"`
	} `json:"content"`
}

func isNullJSON(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
