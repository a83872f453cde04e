// Package rpcengine implements the per-request AMQP round trip: declare a
// UUID-named reply queue, bind it, publish the request, consume exactly one
// reply, ack it, then unbind and delete the queue. Grounded on the original
// proxy's engine/engine.rs Engine::handle and reused by the JWT auth
// middleware's verify/profile sub-RPCs (engine/middleware/jwt.rs), which
// follow the identical seven-step lifecycle against a different exchange.
package rpcengine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/openmatchmaking/pathfinder/internal/broker"
	"github.com/openmatchmaking/pathfinder/internal/perror"
	"github.com/openmatchmaking/pathfinder/internal/plog"
	"github.com/openmatchmaking/pathfinder/internal/pmetrics"
)

// DefaultTimeout is used when a caller passes a zero timeout to Call.
const DefaultTimeout = 30 * time.Second

// Request is one AMQP round trip to perform against a session: publish Body
// to (RequestExchange, RoutingKey), bind a fresh reply queue to
// ResponseExchange, and wait for exactly one delivery.
type Request struct {
	RequestExchange  string
	ResponseExchange string
	RoutingKey       string
	Body             []byte
	Headers          map[string]string
	CorrelationID    string
	Timeout          time.Duration
}

// Call runs the full declare/bind/publish/consume/ack/unbind/delete cycle
// against session and returns the reply body verbatim, or a
// *perror.ProxyError describing which step failed. Compensation
// (unbind/delete) is attempted best-effort on every exit path, mirroring
// §4.5's Compensate state; compensation failures are logged, never
// propagated to the caller.
func Call(ctx context.Context, session *broker.Session, req Request, log plog.Logger, m pmetrics.Scope, clk clock.Clock) ([]byte, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	queueName := uuid.New().String()
	rlog := log.WithField("reply_queue", queueName)

	stop := m.Timer(clk, "RPCEngine.Latency")
	defer stop()

	// 1. Declare the reply queue.
	_, err := session.Consume.QueueDeclare(queueName, true, false, true, false, nil)
	if err != nil {
		return nil, perror.MessageBroker("The request wasn't processed. Please, try once again.")
	}
	declared := true
	bound := false

	defer func() {
		if !declared {
			return
		}
		if bound {
			if err := session.Consume.QueueUnbind(queueName, queueName, req.ResponseExchange, nil); err != nil {
				rlog.Warning("unbind failed during compensation: %s", err)
			}
		}
		if _, err := session.Consume.QueueDelete(queueName, false, false, false); err != nil {
			rlog.Warning("delete failed during compensation: %s", err)
		}
	}()

	// 2. Bind it to the response exchange under its own name as routing key.
	if err := session.Consume.QueueBind(queueName, queueName, req.ResponseExchange, false, nil); err != nil {
		return nil, perror.MessageBroker("The request wasn't processed. Please, try once again.")
	}
	bound = true

	// 3. Publish the request.
	headers := amqp.Table{}
	for k, v := range req.Headers {
		headers[k] = v
	}
	err = session.Publish.PublishWithContext(ctx, req.RequestExchange, req.RoutingKey, true, false, amqp.Publishing{
		ContentType:   "application/json",
		Headers:       headers,
		DeliveryMode:  amqp.Persistent,
		ReplyTo:       queueName,
		CorrelationId: req.CorrelationID,
		Body:          req.Body,
	})
	if err != nil {
		return nil, perror.MessageBroker("The request wasn't processed. Please, try once again.")
	}

	// 4. Consume exactly one delivery, bounded by timeout.
	deliveries, err := session.Consume.Consume(queueName, "response_consumer_"+queueName, false, true, false, false, nil)
	if err != nil {
		return nil, perror.MessageBroker("The request wasn't processed. Please, try once again.")
	}

	consumeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case delivery, ok := <-deliveries:
		if !ok {
			return nil, perror.MessageBroker("The request wasn't processed. Please, try once again.")
		}
		// 5. Respond: ack, then hand the body back to the caller.
		if err := delivery.Ack(false); err != nil {
			rlog.Warning("ack failed: %s", err)
		}
		return delivery.Body, nil
	case <-consumeCtx.Done():
		return nil, perror.MessageBroker("The request wasn't processed. Please, try once again.")
	}
}

// DefaultHeaders builds the request_url/microservice_name/permissions/user_id
// header set every primary RPC attaches before auth-supplied headers are
// merged in, per §4.5 step 3 and the original's prepare_request_headers.
func DefaultHeaders(requestURL, microservice, permissions, userID string) map[string]string {
	return map[string]string{
		"microservice_name": microservice,
		"request_url":       requestURL,
		"permissions":       permissions,
		"user_id":           userID,
	}
}

// MergeHeaders overlays extra onto base, with extra winning on conflict, per
// §4.5 step 3 ("auth headers overwrite defaults on key conflict").
func MergeHeaders(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
