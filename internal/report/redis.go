package report

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hamed0406/dpiprobe/internal/domain"
)

const (
	DefaultChannel    = "dpiprobe:events"
	DefaultRedisQueue = 256
)

// Publisher is the slice of the go-redis client RedisPublisher needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher sends every event as JSON on a Redis pub/sub channel.
// Sink calls only enqueue; a single worker publishes in order. When the queue
// is full the event is dropped and logged. Publish failures are logged too.
type RedisPublisher struct {
	Logger  *zap.Logger
	Client  Publisher
	Channel string
	Timeout time.Duration

	mu      sync.Mutex
	closed  bool
	dropped int64
	queue   chan Event
	done    chan struct{}
	once    sync.Once
}

func NewRedisPublisher(logger *zap.Logger, client Publisher, channel string) *RedisPublisher {
	return newRedisPublisher(logger, client, channel, DefaultRedisQueue)
}

func newRedisPublisher(logger *zap.Logger, client Publisher, channel string, buffer int) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if buffer <= 0 {
		buffer = DefaultRedisQueue
	}
	p := &RedisPublisher{
		Logger:  logger,
		Client:  client,
		Channel: channel,
		Timeout: 2 * time.Second,
		queue:   make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *RedisPublisher) OnProbeUpdate(instanceID string, res domain.ProbeResult) {
	r := res
	p.enqueue(Event{Type: EventProbe, InstanceID: instanceID, Result: &r})
}

func (p *RedisPublisher) OnRunComplete(successCount, totalCount int) {
	p.enqueue(Event{Type: EventRun, Passed: successCount, Total: totalCount})
}

// Close stops accepting events, drains what is queued and waits for the
// worker to exit.
func (p *RedisPublisher) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
	<-p.done
}

// Dropped reports how many events were discarded on a full queue.
func (p *RedisPublisher) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func (p *RedisPublisher) enqueue(ev Event) {
	ev.Timestamp = time.Now().UTC()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- ev:
	default:
		p.dropped++
		p.Logger.Warn("redis_queue_full",
			zap.String("type", string(ev.Type)),
			zap.String("instance_id", ev.InstanceID),
			zap.Int64("dropped", p.dropped),
		)
	}
}

func (p *RedisPublisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		p.publish(ev)
	}
}

func (p *RedisPublisher) publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.Logger.Error("redis_marshal_failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	if err := p.Client.Publish(ctx, p.Channel, data).Err(); err != nil {
		p.Logger.Warn("redis_publish_failed",
			zap.String("channel", p.Channel),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}
