package auth

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmhodges/clock"
	josejwt "gopkg.in/go-jose/go-jose.v2"

	"github.com/openmatchmaking/pathfinder/internal/broker"
	"github.com/openmatchmaking/pathfinder/internal/codec"
	"github.com/openmatchmaking/pathfinder/internal/endpoint"
	"github.com/openmatchmaking/pathfinder/internal/perror"
	"github.com/openmatchmaking/pathfinder/internal/plog"
	"github.com/openmatchmaking/pathfinder/internal/pmetrics"
	"github.com/openmatchmaking/pathfinder/internal/rpcengine"
)

// Well-known auth exchanges/routing keys the JWT middleware's two sub-RPCs
// target, mirroring engine/middleware/mod.rs's TOKEN_VERIFY_* and
// TOKEN_USER_PROFILE_* constants. The reply queue for both sub-RPCs binds to
// the shared response exchange, not the target endpoint's own.
const (
	TokenVerifyExchange     = "open-matchmaking.auth.token.verify.direct"
	TokenVerifyRoutingKey   = "auth.token.verify"
	TokenProfileExchange    = "open-matchmaking.auth.users.retrieve.direct"
	TokenProfileRoutingKey  = "auth.users.retrieve"
	verifyMicroserviceName  = "microservice-auth"
	verifyRequestURL        = "/auth/api/token/verify"
	profileMicroserviceName = "microservice-auth"
	profileRequestURL       = "/auth/api/users/retrieve"
)

// JWTMiddleware authenticates a request by structurally parsing its token,
// then running the verify and profile sub-RPCs in sequence. Cryptographic
// verification of the token is delegated entirely to the verify sub-RPC;
// this middleware only rejects a request up front when the `token` field is
// missing or isn't even a well-formed JWT, avoiding a wasted broker round
// trip.
type JWTMiddleware struct {
	RequestTimeout time.Duration
}

func (j JWTMiddleware) Process(ctx context.Context, env *codec.Envelope, session *broker.Session, log plog.Logger, m pmetrics.Scope, clk clock.Clock) (Headers, error) {
	token := env.Token
	if token == "" {
		return nil, perror.Authentication("The `token` field must be specified.")
	}
	if _, err := josejwt.ParseSigned(token); err != nil {
		return nil, perror.Authentication("The `token` field must be specified.")
	}

	if err := j.verify(ctx, token, env, session, log, m, clk); err != nil {
		return nil, err
	}

	return j.profile(ctx, token, env, session, log, m, clk)
}

func (j JWTMiddleware) verify(ctx context.Context, token string, env *codec.Envelope, session *broker.Session, log plog.Logger, m pmetrics.Scope, clk clock.Clock) error {
	body, _ := json.Marshal(map[string]string{"access_token": token})

	reply, err := rpcengine.Call(ctx, session, rpcengine.Request{
		RequestExchange:  TokenVerifyExchange,
		ResponseExchange: endpoint.DefaultResponseExchange,
		RoutingKey:       TokenVerifyRoutingKey,
		Body:             body,
		Headers: map[string]string{
			"microservice_name": verifyMicroserviceName,
			"request_url":       verifyRequestURL,
		},
		CorrelationID: codec.CorrelationID(env),
		Timeout:       j.RequestTimeout,
	}, log, m, clk)
	if err != nil {
		return err
	}

	var resp verifyResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		return perror.MessageBroker("The request wasn't processed. Please, try once again.")
	}
	if !isNullJSON(resp.Error) {
		return perror.Microservice(resp.Error)
	}
	if resp.Content == nil || !resp.Content.IsValid {
		return perror.Authentication("Token is invalid.")
	}
	return nil
}

func (j JWTMiddleware) profile(ctx context.Context, token string, env *codec.Envelope, session *broker.Session, log plog.Logger, m pmetrics.Scope, clk clock.Clock) (Headers, error) {
	body, _ := json.Marshal(map[string]string{"access_token": token})

	reply, err := rpcengine.Call(ctx, session, rpcengine.Request{
		RequestExchange:  TokenProfileExchange,
		ResponseExchange: endpoint.DefaultResponseExchange,
		RoutingKey:       TokenProfileRoutingKey,
		Body:             body,
		Headers: map[string]string{
			"microservice_name": profileMicroserviceName,
			"request_url":       profileRequestURL,
		},
		CorrelationID: codec.CorrelationID(env),
		Timeout:       j.RequestTimeout,
	}, log, m, clk)
	if err != nil {
		return nil, err
	}

	var resp profileResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		return nil, perror.MessageBroker("The request wasn't processed. Please, try once again.")
	}
	if !isNullJSON(resp.Error) {
		return nil, perror.Microservice(resp.Error)
	}
	if resp.Content == nil {
		return Headers{}, nil
	}
	return Headers{"permissions": strings.Join(resp.Content.Permissions, ";")}, nil
}

