package sockets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Event is a message published on the relay channel.
type Event struct {
	UID   string          `json:"uid"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RelayObserver counts relayed messages by outcome.
type RelayObserver interface {
	ObserveRelay(outcome string)
}

// Relay forwards events published on a Redis channel to user sockets.
type Relay struct {
	client   *redis.Client
	channel  string
	hub      *Hub
	logger   *slog.Logger
	observer RelayObserver
}

// NewRelay constructs a Relay. observer may be nil.
func NewRelay(client *redis.Client, channel string, hub *Hub, logger *slog.Logger, observer RelayObserver) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{client: client, channel: channel, hub: hub, logger: logger, observer: observer}
}

// Run subscribes to the channel and relays until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer func() {
		_ = pubsub.Close()
	}()
	// Wait for the subscription to be confirmed before reading messages.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("sockets: subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("event relay subscribed", slog.String("channel", r.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.handle(ctx, msg.Payload)
		}
	}
}

func (r *Relay) handle(ctx context.Context, payload string) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil || ev.UID == "" || ev.Event == "" {
		r.logger.Warn("drop malformed relay event", slog.String("channel", r.channel), slog.Any("error", err))
		r.observe("malformed")
		return
	}
	data := ev.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	delivered, err := r.hub.EmitUser(ctx, ev.UID, ev.Event, data)
	if err != nil {
		r.logger.Warn("relay event write failed", slog.String("uid", ev.UID), slog.String("event", ev.Event), slog.Any("error", err))
	}
	if delivered == 0 {
		r.observe("undelivered")
		return
	}
	r.observe("delivered")
}

func (r *Relay) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveRelay(outcome)
	}
}
