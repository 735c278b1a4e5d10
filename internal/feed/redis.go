package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Mirror bridges the in-process bus to a redis pub/sub channel so that
// observers connected to one instance see mutations made on another. Events
// carry the publishing process id; the mirror drops echoes of its own
// publishes to avoid loops.
type Mirror struct {
	client  *redis.Client
	bus     *Bus
	channel string
	origin  string
}

// NewMirror constructs a Mirror over an existing redis client.
func NewMirror(client *redis.Client, bus *Bus, channel string) *Mirror {
	return &Mirror{
		client:  client,
		bus:     bus,
		channel: channel,
		origin:  uuid.NewString(),
	}
}

// Publish pushes the event locally and to redis.
func (m *Mirror) Publish(ctx context.Context, event Event) {
	event.Origin = m.origin
	m.bus.Publish(event)

	payload, errMarshal := json.Marshal(event)
	if errMarshal != nil {
		log.Errorf("feed: marshal event: %v", errMarshal)
		return
	}
	if errPublish := m.client.Publish(ctx, m.channel, payload).Err(); errPublish != nil {
		log.Warnf("feed: redis publish: %v", errPublish)
	}
}

// Run consumes remote events until ctx is done, replaying them onto the
// local bus. Subscription failures back off and retry; losing a snapshot is
// tolerable because every event carries the full set.
func (m *Mirror) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		sub := m.client.Subscribe(ctx, m.channel)
		ch := sub.Channel()

	drain:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break drain
				}
				var event Event
				if errUnmarshal := json.Unmarshal([]byte(msg.Payload), &event); errUnmarshal != nil {
					log.Warnf("feed: bad remote event: %v", errUnmarshal)
					continue
				}
				if event.Origin == m.origin {
					continue
				}
				m.bus.Publish(event)
			}
		}

		_ = sub.Close()
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}
