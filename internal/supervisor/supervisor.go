// Package supervisor multiplexes many WebSocket connections onto a shared
// AMQP broker, running each connection's reader/writer tasks under
// errgroup, grounded on the original proxy's connection/session handling in
// proxy.rs and main.rs, generalized from futures/tokio task-spawning to
// Go's goroutines + errgroup per the teacher's use of the same package in
// its CA-signing worker pools.
package supervisor

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jmhodges/clock"
	"golang.org/x/sync/errgroup"

	"github.com/openmatchmaking/pathfinder/internal/auth"
	"github.com/openmatchmaking/pathfinder/internal/broker"
	"github.com/openmatchmaking/pathfinder/internal/codec"
	"github.com/openmatchmaking/pathfinder/internal/endpoint"
	"github.com/openmatchmaking/pathfinder/internal/plog"
	"github.com/openmatchmaking/pathfinder/internal/pmetrics"
	"github.com/openmatchmaking/pathfinder/internal/rpcengine"
)

// Supervisor accepts WebSocket connections and runs the C4->C5 pipeline
// (§4.6) for every inbound frame.
type Supervisor struct {
	Broker         *broker.Broker
	Registry       *endpoint.Registry
	Log            plog.Logger
	Metrics        pmetrics.Scope
	Clock          clock.Clock
	RequestTimeout time.Duration

	upgrader websocket.Upgrader
	conns    *connRegistry
}

// New constructs a Supervisor ready to be used as an http.Handler.
func New(b *broker.Broker, reg *endpoint.Registry, log plog.Logger, m pmetrics.Scope, clk clock.Clock, requestTimeout time.Duration) *Supervisor {
	return &Supervisor{
		Broker:         b,
		Registry:       reg,
		Log:            log,
		Metrics:        m,
		Clock:          clk,
		RequestTimeout: requestTimeout,
		upgrader:       websocket.Upgrader{},
		conns:          newConnRegistry(),
	}
}

// ConnectionCount reports the number of live connections, for the debug
// endpoint.
func (s *Supervisor) ConnectionCount() int { return s.conns.Len() }

// ServeHTTP upgrades the request to a WebSocket and runs the connection
// until either task exits, per §4.6 step 1.
func (s *Supervisor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Warning("websocket handshake failed: %s", err)
		return
	}
	s.handleConnection(r.Context(), conn)
}

func (s *Supervisor) handleConnection(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	// §4.6 step 2: open a broker session for this connection.
	session, err := s.Broker.OpenSession()
	if err != nil {
		s.Log.AuditErr("opening broker session: %s", err)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseProtocolError, "broker unavailable"))
		return
	}
	defer session.Close()

	// §4.6 step 3: unbounded sink + registry entry.
	addr := conn.RemoteAddr().String()
	sink := newUnboundedQueue()
	s.conns.register(addr, sink)
	defer s.conns.remove(addr)
	defer sink.Close()

	s.Metrics.GaugeDelta("Supervisor.OpenConnections", 1)
	defer s.Metrics.GaugeDelta("Supervisor.OpenConnections", -1)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(connCtx)
	g.Go(func() error { return s.readLoop(gCtx, conn, session, sink) })
	g.Go(func() error { return s.writeLoop(gCtx, conn, sink) })

	if err := g.Wait(); err != nil {
		s.Log.Debug("connection %s closed: %s", addr, err)
	}
}

// readLoop is the reader task of §4.6 step 5: it reads frames and spawns a
// request task per frame without awaiting it, so requests from the same
// client may run concurrently.
func (s *Supervisor) readLoop(ctx context.Context, conn *websocket.Conn, session *broker.Session, sink *unboundedQueue) error {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		go s.handleFrame(ctx, messageType, data, session, sink)
	}
}

// writeLoop is the writer task of §4.6 step 6: it drains the MPSC queue and
// writes frames to the socket in FIFO order.
func (s *Supervisor) writeLoop(ctx context.Context, conn *websocket.Conn, sink *unboundedQueue) error {
	for {
		frame, ok := sink.Pop(ctx)
		if !ok {
			return ctx.Err()
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return err
		}
	}
}

// handleFrame runs the full C1->C4->C5 pipeline for one inbound frame
// (§4.5), always producing exactly one outbound frame (P1): either the
// target microservice's verbatim response or an error envelope.
func (s *Supervisor) handleFrame(ctx context.Context, messageType int, data []byte, session *broker.Session, sink *unboundedQueue) {
	env, err := codec.Deserialize(messageType, data)
	if err != nil {
		sink.Push(codec.WrapError(err))
		return
	}

	descriptor, err := s.Registry.Match(env.URL)
	if err != nil {
		sink.Push(codec.WrapError(err))
		return
	}

	middleware := s.middlewareFor(descriptor)
	extraHeaders, err := middleware.Process(ctx, env, session, s.Log, s.Metrics, s.Clock)
	if err != nil {
		sink.Push(codec.WrapError(err))
		return
	}

	headers := rpcengine.MergeHeaders(
		rpcengine.DefaultHeaders(descriptor.URL, descriptor.Microservice, env.Permissions, env.UserID),
		extraHeaders,
	)

	reply, err := rpcengine.Call(ctx, session, rpcengine.Request{
		RequestExchange:  descriptor.RequestExchange,
		ResponseExchange: descriptor.ResponseExchange,
		RoutingKey:       descriptor.RoutingKey,
		Body:             env.Content,
		Headers:          headers,
		CorrelationID:    codec.CorrelationID(env),
		Timeout:          s.RequestTimeout,
	}, s.Log, s.Metrics, s.Clock)
	if err != nil {
		sink.Push(codec.WrapError(err))
		return
	}

	sink.Push(codec.Serialize(reply))
}

func (s *Supervisor) middlewareFor(d *endpoint.Descriptor) auth.Middleware {
	if d.Auth == endpoint.AuthJWT {
		return auth.JWTMiddleware{RequestTimeout: s.RequestTimeout}
	}
	return auth.NullMiddleware{}
}
