// Package broker manages the proxy's single AMQP connection and the
// confirm-mode publish/consume channel pair opened per connected client,
// grounded on the original proxy's rabbitmq/client.rs (RabbitMQClient /
// RabbitMQContext) and boulder's rpc/amqp-rpc.go AmqpChannel for the
// AMQPS/TLS dial branch.
package broker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/openmatchmaking/pathfinder/internal/config"
	"github.com/openmatchmaking/pathfinder/internal/perror"
	"github.com/openmatchmaking/pathfinder/internal/plog"
	"github.com/openmatchmaking/pathfinder/internal/pmetrics"
)

// Broker owns the single AMQP connection pathfinder's connection supervisor
// multiplexes all WebSocket sessions onto.
type Broker struct {
	conn *amqp.Connection
	log  plog.Logger
	m    pmetrics.Scope

	mu     sync.RWMutex
	closed bool
}

// Connect dials the broker at cfg.AMQP.URI, following the AMQPS/insecure
// branch boulder's AmqpChannel uses: amqp:// with Insecure=true dials
// directly, anything else requires an amqps:// URI and a TLS config.
func Connect(ctx context.Context, cfg *config.AMQPConfig, log plog.Logger, m pmetrics.Scope) (*Broker, error) {
	uri := string(cfg.URI)

	var conn *amqp.Connection
	var err error

	amqpCfg := amqp.Config{Heartbeat: cfg.HeartbeatInterval.Duration}
	if amqpCfg.Heartbeat == 0 {
		amqpCfg.Heartbeat = 10 * time.Second
	}

	if cfg.Insecure {
		conn, err = amqp.DialConfig(uri, amqpCfg)
	} else {
		if !strings.HasPrefix(uri, "amqps") {
			return nil, perror.MessageBroker("AMQPS: not using an amqps:// URL; set insecure=true to use amqp://")
		}
		if cfg.TLS == nil {
			return nil, perror.MessageBroker("AMQPS: no TLS configuration provided; set insecure=true to use amqp://")
		}

		tlsCfg, tlsErr := buildTLSConfig(cfg.TLS, log)
		if tlsErr != nil {
			return nil, perror.MessageBroker("AMQPS: %s", tlsErr)
		}
		amqpCfg.TLSClientConfig = tlsCfg
		conn, err = amqp.DialConfig(uri, amqpCfg)
	}
	if err != nil {
		return nil, perror.MessageBroker("connecting to broker: %s", err)
	}

	b := &Broker{conn: conn, log: log, m: m}
	go b.watchClose(ctx)
	return b, nil
}

func buildTLSConfig(t *config.TLSConfig, log plog.Logger) (*tls.Config, error) {
	cfg := new(tls.Config)

	if t.CertFile != "" || t.KeyFile != "" {
		if t.CertFile == "" || t.KeyFile == "" {
			return nil, fmt.Errorf("both tls.cert_file and tls.key_file must be set")
		}
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		log.Info("AMQPS: configured client certificate")
		cfg.Certificates = append(cfg.Certificates, cert)
	}

	if t.CACertFile != "" {
		ca, err := os.ReadFile(t.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("loading CA certificate: %w", err)
		}
		cfg.RootCAs = x509.NewCertPool()
		cfg.RootCAs.AppendCertsFromPEM(ca)
		log.Info("AMQPS: configured CA certificate")
	}

	return cfg, nil
}

// watchClose observes the connection's close notification and records it,
// mirroring the original client's spawned heartbeat-error logger.
func (b *Broker) watchClose(ctx context.Context) {
	closeCh := b.conn.NotifyClose(make(chan *amqp.Error, 1))
	select {
	case err := <-closeCh:
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		if err != nil {
			b.log.AuditErr("broker connection closed: %s", err)
			b.m.Inc("Broker.ConnectionClosed", 1)
		}
	case <-ctx.Done():
	}
}

// Alive reports whether the underlying connection is still open.
func (b *Broker) Alive() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed && !b.conn.IsClosed()
}

// Close tears down the broker connection.
func (b *Broker) Close() error {
	return b.conn.Close()
}

// PublishChannel is the subset of *amqp091.Channel the RPC engine uses to
// publish a request. It exists so tests can substitute a fake in place of a
// real AMQP channel.
type PublishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// ConsumeChannel is the subset of *amqp091.Channel the RPC engine uses to
// declare, bind, consume from, and tear down a reply queue. It exists so
// tests can substitute a fake in place of a real AMQP channel.
type ConsumeChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueueUnbind(name, key, exchange string, args amqp.Table) error
	QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Session is the pair of confirm-mode channels one connected WebSocket
// client uses for its whole lifetime: one to publish requests, one to
// consume the per-request reply queues it declares. Splitting the two
// mirrors RabbitMQContext.
type Session struct {
	Publish PublishChannel
	Consume ConsumeChannel
}

// OpenSession opens a fresh publish/consume channel pair in confirm mode.
func (b *Broker) OpenSession() (*Session, error) {
	publish, err := b.conn.Channel()
	if err != nil {
		return nil, perror.MessageBroker("opening publish channel: %s", err)
	}
	if err := publish.Confirm(false); err != nil {
		publish.Close()
		return nil, perror.MessageBroker("enabling confirm mode on publish channel: %s", err)
	}

	consume, err := b.conn.Channel()
	if err != nil {
		publish.Close()
		return nil, perror.MessageBroker("opening consume channel: %s", err)
	}
	if err := consume.Confirm(false); err != nil {
		publish.Close()
		consume.Close()
		return nil, perror.MessageBroker("enabling confirm mode on consume channel: %s", err)
	}

	b.m.Inc("Broker.SessionsOpened", 1)
	return &Session{Publish: publish, Consume: consume}, nil
}

// Close releases both channels of the session.
func (s *Session) Close() {
	if s.Publish != nil {
		s.Publish.Close()
	}
	if s.Consume != nil {
		s.Consume.Close()
	}
}
