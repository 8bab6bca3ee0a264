// Package bus is the topic-based event channel between actors. Every publish
// goes to a Redis pub/sub channel (plain broadcast, no replay) and is
// mirrored into a capped Redis stream so subscribers that must not miss the
// gap between registering and "now" can replay from a cursor.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/razihadjamor/mangeo-backend/pkg/config"
	"github.com/razihadjamor/mangeo-backend/pkg/logger"
)

const (
	channelNamespace = "mg:events"
	streamNamespace  = "mg:stream"
	payloadField     = "payload"
)

// Message is one delivered event.
type Message struct {
	Topic   string
	Payload []byte
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// Bus publishes and subscribes over a shared Redis connection.
type Bus struct {
	rdb  *redis.Client
	cfg  config.BusConfig
	logg *logger.Logger
}

// New wraps an established Redis connection.
func New(rdb *redis.Client, cfg config.BusConfig, logg *logger.Logger) (*Bus, error) {
	if rdb == nil {
		return nil, errors.New("redis connection is required")
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 64
	}
	return &Bus{rdb: rdb, cfg: cfg, logg: logg}, nil
}

// Publish fires payload at every current subscriber of topic and appends it
// to the topic's replay stream. No acknowledgement, no cross-topic ordering.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", topic, err)
	}

	pipe := b.rdb.TxPipeline()
	pipe.Publish(ctx, ChannelName(topic), body)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName(topic),
		MaxLen: b.cfg.StreamMaxLen,
		Approx: true,
		Values: map[string]any{payloadField: body},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns a stream of messages for the given topics, starting with
// events published after the subscription registers. The channel closes when
// ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, topics ...string) (<-chan Message, error) {
	if len(topics) == 0 {
		return nil, errors.New("at least one topic is required")
	}
	channels := make([]string, len(topics))
	for i, topic := range topics {
		channels[i] = ChannelName(topic)
	}

	sub := b.rdb.Subscribe(ctx, channels...)
	// Force the SUBSCRIBE round trip so callers know registration happened
	// before they cause the events they want to observe.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", strings.Join(topics, ","), err)
	}

	out := make(chan Message, b.cfg.ChannelBuffer)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- Message{Topic: TopicFromChannel(msg.Channel), Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Cursor marks a per-topic replay position.
type Cursor map[string]string

// Now returns a cursor at the current tail of each topic's stream. Events
// published after this call are visible to SubscribeFrom even if the read
// loop starts later.
func (b *Bus) Now(ctx context.Context, topics ...string) (Cursor, error) {
	if len(topics) == 0 {
		return nil, errors.New("at least one topic is required")
	}
	cursor := make(Cursor, len(topics))
	for _, topic := range topics {
		info, err := b.rdb.XInfoStream(ctx, StreamName(topic)).Result()
		switch {
		case err == nil:
			cursor[topic] = info.LastGeneratedID
		case isMissingStream(err):
			cursor[topic] = "0-0"
		default:
			return nil, fmt.Errorf("reading stream position for %s: %w", topic, err)
		}
	}
	return cursor, nil
}

// SubscribeFrom replays every event published after the cursor position and
// then follows the streams live. The channel closes when ctx is cancelled.
func (b *Bus) SubscribeFrom(ctx context.Context, cursor Cursor) (<-chan Message, error) {
	if len(cursor) == 0 {
		return nil, errors.New("cursor with at least one topic is required")
	}

	positions := make(Cursor, len(cursor))
	for topic, id := range cursor {
		positions[topic] = id
	}

	out := make(chan Message, b.cfg.ChannelBuffer)
	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			streams := make([]string, 0, len(positions)*2)
			ids := make([]string, 0, len(positions))
			for topic, id := range positions {
				streams = append(streams, StreamName(topic))
				ids = append(ids, id)
			}
			streams = append(streams, ids...)

			res, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: streams,
				Block:   b.cfg.ReadBlock,
			}).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				if b.logg != nil {
					b.logg.Warn(ctx, fmt.Sprintf("stream read failed, retrying: %v", err))
				}
				continue
			}

			for _, stream := range res {
				topic := TopicFromStream(stream.Stream)
				for _, entry := range stream.Messages {
					positions[topic] = entry.ID
					raw, ok := entry.Values[payloadField].(string)
					if !ok {
						continue
					}
					select {
					case out <- Message{Topic: topic, Payload: []byte(raw)}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

// ChannelName maps a topic to its pub/sub channel.
func ChannelName(topic string) string {
	return channelNamespace + ":" + topic
}

// StreamName maps a topic to its replay stream.
func StreamName(topic string) string {
	return streamNamespace + ":" + topic
}

// TopicFromChannel inverts ChannelName.
func TopicFromChannel(channel string) string {
	return strings.TrimPrefix(channel, channelNamespace+":")
}

// TopicFromStream inverts StreamName.
func TopicFromStream(stream string) string {
	return strings.TrimPrefix(stream, streamNamespace+":")
}

func isMissingStream(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.Nil) {
		return true
	}
	return strings.Contains(err.Error(), "no such key")
}
