package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/okian/awardtally/internal/domain/model"
	"github.com/okian/awardtally/pkg/logger"
)

const defaultFlushTimeout = 2 * time.Second

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// JetStream is the subset of jetstream.JetStream the publisher uses.
type JetStream interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSConfig holds the broker connection settings.
type NATSConfig struct {
	URL            string
	Subject        string
	ConnectionName string
	MaxReconnects  int
	ReconnectWait  time.Duration
	// JetStream publishes through a stream and waits for its ack.
	JetStream bool
}

// NATSPublisher publishes each event on <subject>.<reason>.
type NATSPublisher struct {
	nc      Conn
	js      JetStream
	subject string
}

// NewNATSPublisher connects to the broker described by cfg.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	if cfg.Subject == "" || strings.ContainsAny(cfg.Subject, " *>") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSubject, cfg.Subject)
	}
	if cfg.ConnectionName == "" {
		cfg.ConnectionName = "awardtally"
	}
	log := logger.Get().Named("nats")

	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Error(context.Background(), "disconnected from nats", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info(context.Background(), "reconnected to nats", logger.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info(context.Background(), "nats connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	var js JetStream
	if cfg.JetStream {
		stream, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create jetstream: %w", err)
		}
		js = stream
	}
	return newNATSPublisher(nc, js, cfg.Subject), nil
}

func newNATSPublisher(nc Conn, js JetStream, subject string) *NATSPublisher {
	return &NATSPublisher{nc: nc, js: js, subject: strings.TrimSuffix(subject, ".")}
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(e model.CertificateEvent) string { //nolint:gocritic // hugeParam
	return p.subject + "." + e.Reason
}

func (p *NATSPublisher) Publish(ctx context.Context, e model.CertificateEvent) error { //nolint:gocritic // hugeParam
	if p.nc == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := p.Subject(e)

	if p.js != nil {
		// The event id doubles as the stream's dedupe key.
		if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(e.EventID)); err != nil {
			return fmt.Errorf("jetstream publish %s: %w", subject, err)
		}
		return nil
	}

	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	// FlushWithContext refuses a context without a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultFlushTimeout)
		defer cancel()
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	p.nc.Close()
}
