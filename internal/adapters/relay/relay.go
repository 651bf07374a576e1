// Package relay feeds room broadcasts published by upstream processes over
// Redis pub/sub into the local room actors.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/orderrelay/internal/core"
	"github.com/dkeye/orderrelay/internal/domain"
	"github.com/dkeye/orderrelay/internal/protocol"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var ErrForeignChannel = errors.New("channel outside prefix")

// Target is the part of the orchestrator the relay drives.
type Target interface {
	Broadcast(key domain.RoomKey, frame core.Frame) (int, error)
	OrderUpdate(key domain.RoomKey, frame core.Frame) (int, error)
}

type Subscriber struct {
	client redis.UniversalClient
	prefix string
	target Target
}

func NewSubscriber(client redis.UniversalClient, prefix string, target Target) *Subscriber {
	return &Subscriber{client: client, prefix: prefix, target: target}
}

// Run listens on <prefix>* until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	ps := s.client.PSubscribe(ctx, s.prefix+"*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("relay subscribe %q: %w", s.prefix+"*", err)
	}
	log.Info().Str("module", "relay").Str("pattern", s.prefix+"*").Msg("relay subscribed")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "relay").Msg("relay stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := s.Deliver(msg.Channel, []byte(msg.Payload)); err != nil {
				log.Warn().Err(err).Str("module", "relay").Str("channel", msg.Channel).Msg("relay message dropped")
			}
		}
	}
}

// Deliver routes one published envelope to its room. order_update envelopes
// take the role-scoped path, anything else is relayed verbatim.
func (s *Subscriber) Deliver(channel string, payload []byte) (int, error) {
	key, err := ParseChannel(s.prefix, channel)
	if err != nil {
		return 0, err
	}
	env, err := protocol.Parse(payload)
	if err != nil {
		return 0, fmt.Errorf("relay payload: %w", err)
	}

	var n int
	if env.Type == protocol.TypeOrderUpdate {
		n, err = s.target.OrderUpdate(key, core.Frame(payload))
	} else {
		n, err = s.target.Broadcast(key, core.Frame(payload))
	}
	if err != nil {
		return 0, err
	}
	log.Debug().Str("module", "relay").Str("room", key.String()).Str("type", env.Type).Int("sent_to", n).Msg("relayed")
	return n, nil
}

// ParseChannel maps <prefix><roomType>:<roomId> to a room key.
func ParseChannel(prefix, channel string) (domain.RoomKey, error) {
	rest, ok := strings.CutPrefix(channel, prefix)
	if !ok {
		return domain.RoomKey{}, fmt.Errorf("%w: %s", ErrForeignChannel, channel)
	}
	roomType, roomID, ok := strings.Cut(rest, ":")
	if !ok {
		return domain.RoomKey{}, fmt.Errorf("malformed room channel %q", channel)
	}
	return domain.NewRoomKey(roomType, roomID)
}

// ChannelFor is the inverse of ParseChannel.
func ChannelFor(prefix string, key domain.RoomKey) string {
	return prefix + string(key.Type) + ":" + string(key.ID)
}

// Publish sends an envelope to every relay instance subscribed under prefix.
func Publish(ctx context.Context, client redis.UniversalClient, prefix string, key domain.RoomKey, frame core.Frame) (int64, error) {
	if _, err := protocol.Parse(frame); err != nil {
		return 0, fmt.Errorf("publish payload: %w", err)
	}
	return client.Publish(ctx, ChannelFor(prefix, key), []byte(frame)).Result()
}
