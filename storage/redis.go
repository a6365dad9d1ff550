package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

const (
	// BoardKeyPrefix prefixes the Redis key holding a board document.
	BoardKeyPrefix = "board:"
	// BoardUpdatesPrefix prefixes the Pub/Sub channel announcing document writes.
	BoardUpdatesPrefix = "board-updates:"
)

// ParseRedisOptions accepts a redis:// URL or the Azure style
// "host:port,password=...,ssl=True" connection string.
func ParseRedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	if strings.TrimSpace(parts[0]) == "" {
		return nil, err
	}
	opts = &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}

// RedisRemote keeps the board document under a single key and announces every
// write on a Pub/Sub channel.
type RedisRemote struct {
	client     *redis.Client
	key        string
	channel    string
	logger     *log.Logger
	ownsClient bool
}

// NewRedisRemote uses an existing client; Close leaves the client open.
func NewRedisRemote(client *redis.Client, boardID string, logger *log.Logger) *RedisRemote {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisRemote{
		client:  client,
		key:     BoardKeyPrefix + boardID,
		channel: BoardUpdatesPrefix + boardID,
		logger:  logger,
	}
}

// Write stores the document and publishes the change in one MULTI/EXEC.
func (r *RedisRemote) Write(ctx context.Context, b *domain.Board) error {
	data, err := encode(b)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.key, data, 0)
		p.Publish(ctx, r.channel, b.UpdatedAt.Format(time.RFC3339Nano))
		return nil
	})
	return remoteErr("redis", "write", err)
}

// Subscribe delivers the current document first and then re-reads the key on
// every notification. The channel closes when ctx is done.
func (r *RedisRemote) Subscribe(ctx context.Context) (<-chan Snapshot, error) {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, remoteErr("redis", "subscribe", err)
	}

	out := make(chan Snapshot)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		if !deliver(ctx, out, r.fetch(ctx)) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					r.logger.WithField("channel", r.channel).Error("board subscription channel closed")
					return
				}
				if !deliver(ctx, out, r.fetch(ctx)) {
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *RedisRemote) fetch(ctx context.Context) Snapshot {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}
	}
	if err != nil {
		return Snapshot{Err: remoteErr("redis", "get", err)}
	}
	return decodeSnapshot(data)
}

func (r *RedisRemote) Close() error {
	if r.ownsClient {
		return r.client.Close()
	}
	return nil
}

func deliver(ctx context.Context, out chan<- Snapshot, s Snapshot) bool {
	select {
	case out <- s:
		return true
	case <-ctx.Done():
		return false
	}
}
