package socket

import (
	"context"
	"encoding/json"
	"time"

	"syncspace/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const bridgeChannel = "syncspace:rooms"

// Bridge relays delta/cursor traffic between relay instances over Redis
// pub/sub, so sessions joined to the same document on different instances
// still see each other's edits. Delivery stays best-effort.
type Bridge struct {
	rdb        *redis.Client
	hub        *Hub
	instanceID string
	cancel     context.CancelFunc
}

// envelope wraps a relayed message with the id of the instance that
// published it, so an instance can skip its own republications.
type envelope struct {
	Instance string    `json:"instance"`
	Msg      WSMessage `json:"msg"`
}

func NewBridge(addr string, hub *Hub) (*Bridge, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return &Bridge{
		rdb:        rdb,
		hub:        hub,
		instanceID: uuid.NewString(),
	}, nil
}

// Run subscribes to the shared channel and pumps remote messages into the
// hub until Close is called.
func (b *Bridge) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	pubsub := b.rdb.Subscribe(ctx, bridgeChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			logger.Sugar.Errorf("Bridge: bad envelope: %v", err)
			continue
		}
		if env.Instance == b.instanceID {
			continue
		}
		b.hub.InjectRemote(env.Msg)
	}
}

// Publish sends a locally originated message to the other instances.
func (b *Bridge) Publish(msg WSMessage) {
	payload, err := json.Marshal(envelope{Instance: b.instanceID, Msg: msg})
	if err != nil {
		logger.Sugar.Errorf("Bridge: marshal failed: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(ctx, bridgeChannel, payload).Err(); err != nil {
		logger.Sugar.Warnf("Bridge: publish failed: %v", err)
	}
}

func (b *Bridge) Close() {
	if b.cancel != nil {
		b.cancel()
	}
	b.rdb.Close()
}
