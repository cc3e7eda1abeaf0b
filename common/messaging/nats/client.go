// Package nats connects alertstream to NATS: plain publishing for the live
// feed forwarder and durable JetStream pull consumers for NATS alert sources.
package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/common/messaging"
)

// Client publishes to NATS and satisfies messaging.Client.
type Client struct {
	conn *nats.Conn
}

var _ messaging.Client = (*Client)(nil)

// Config describes one NATS connection.
type Config struct {
	URL  string
	Name string
	// MaxReconnects of -1 reconnects forever.
	MaxReconnects int
	ReconnectWait time.Duration
	// Timeout bounds the initial dial.
	Timeout time.Duration
	Logger  *logging.Logger
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "alertstream",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

func (c Config) validate() error {
	if c.URL == "" {
		return errors.New("nats url is required")
	}
	if c.ReconnectWait < 0 || c.Timeout < 0 {
		return errors.New("nats durations must not be negative")
	}
	return nil
}

// options translates c into connection options. Connection state changes are
// logged under the "nats" component.
func (c Config) options() []nats.Option {
	logger := logging.OrDefault(c.Logger).With("component", "nats", "client", c.Name)
	return []nats.Option{
		nats.Name(c.Name),
		nats.MaxReconnects(c.MaxReconnects),
		nats.ReconnectWait(c.ReconnectWait),
		nats.Timeout(c.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", "server", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Debug("NATS connection closed")
		}),
	}
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	conn, err := nats.Connect(cfg.URL, cfg.options()...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.URL, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.conn.Publish(subject, data)
}

// PublishMsg publishes msg with its Metadata as NATS headers.
func (c *Client) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.conn.PublishMsg(toNatsMsg(msg))
}

func toNatsMsg(msg *messaging.Message) *nats.Msg {
	out := &nats.Msg{Subject: msg.Subject, Data: msg.Data}
	if len(msg.Metadata) == 0 {
		return out
	}
	out.Header = make(nats.Header, len(msg.Metadata))
	for k, v := range msg.Metadata {
		out.Header.Set(k, v)
	}
	return out
}

// RTT lets messaging.CheckClientHealth report latency.
func (c *Client) RTT() (time.Duration, error) {
	return c.conn.RTT()
}

func (c *Client) Close() error {
	c.conn.Close()
	return nil
}

// Drain flushes pending publishes and closes the connection.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}
