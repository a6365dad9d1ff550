package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

// NotifyChannel is the LISTEN/NOTIFY channel; payloads carry the board id.
const NotifyChannel = "board_documents"

const schemaSQL = `CREATE TABLE IF NOT EXISTS board_documents (
	id         text PRIMARY KEY,
	doc        jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
)`

// PostgresRemote keeps the board document in a jsonb row and announces writes
// with pg_notify in the same transaction.
type PostgresRemote struct {
	pool    *pgxpool.Pool
	boardID string
	logger  *log.Logger
	backoff time.Duration
}

func NewPostgresRemote(ctx context.Context, databaseURL, boardID string, logger *log.Logger) (*PostgresRemote, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, remoteErr("postgres", "open", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, remoteErr("postgres", "ping", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, remoteErr("postgres", "migrate", err)
	}
	return &PostgresRemote{pool: pool, boardID: boardID, logger: logger, backoff: time.Second}, nil
}

func (p *PostgresRemote) Write(ctx context.Context, b *domain.Board) error {
	data, err := encode(b)
	if err != nil {
		return err
	}
	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO board_documents (id, doc, updated_at) VALUES ($1, $2::jsonb, now())
			ON CONFLICT (id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`, p.boardID, string(data)); err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, p.boardID); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		return nil
	})
	return remoteErr("postgres", "write", err)
}

// Subscribe holds one pooled connection in LISTEN mode. A broken connection is
// replaced and the document re-read, so no change is missed across reconnects.
func (p *PostgresRemote) Subscribe(ctx context.Context) (<-chan Snapshot, error) {
	conn, err := p.listen(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan Snapshot)
	go func() {
		defer close(out)
		defer func() {
			if conn != nil {
				p.release(conn)
			}
		}()
		if !deliver(ctx, out, p.fetch(ctx)) {
			return
		}
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.WithError(err).Warn("board listener lost, reconnecting")
				p.release(conn)
				conn = nil
				for conn == nil {
					select {
					case <-ctx.Done():
						return
					case <-time.After(p.backoff):
					}
					if conn, err = p.listen(ctx); err != nil {
						p.logger.WithError(err).Warn("board listener reconnect failed")
						conn = nil
					}
				}
				if !deliver(ctx, out, p.fetch(ctx)) {
					return
				}
				continue
			}
			if n.Payload != p.boardID {
				continue
			}
			if !deliver(ctx, out, p.fetch(ctx)) {
				return
			}
		}
	}()
	return out, nil
}

func (p *PostgresRemote) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, remoteErr("postgres", "acquire", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		conn.Release()
		return nil, remoteErr("postgres", "listen", err)
	}
	return conn, nil
}

func (p *PostgresRemote) release(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := conn.Exec(ctx, "UNLISTEN *"); err != nil {
		// Drop the connection rather than return a listening one to the pool.
		_ = conn.Conn().Close(ctx)
	}
	conn.Release()
}

func (p *PostgresRemote) fetch(ctx context.Context) Snapshot {
	var doc string
	err := p.pool.QueryRow(ctx, `SELECT doc::text FROM board_documents WHERE id = $1`, p.boardID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}
	}
	if err != nil {
		return Snapshot{Err: remoteErr("postgres", "get", err)}
	}
	return decodeSnapshot([]byte(doc))
}

func (p *PostgresRemote) Close() error {
	p.pool.Close()
	return nil
}
