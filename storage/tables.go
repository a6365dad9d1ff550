package storage

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

// BoardPartition is the PartitionKey of every board entity; the RowKey is the board id.
const BoardPartition = "board"

type tableClient interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
}

type boardEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Document     string `json:"Document"`
}

// TablesRemote stores the board document as one Azure Tables entity. Tables has
// no change feed, so Subscribe polls and delivers whenever the ETag moves.
type TablesRemote struct {
	table    tableClient
	boardID  string
	interval time.Duration
	logger   *log.Logger
}

// NewTablesRemote connects with the same retry policy the API services use and
// creates the table when it does not exist yet.
func NewTablesRemote(ctx context.Context, connStr, tableName, boardID string, interval time.Duration, logger *log.Logger) (*TablesRemote, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, remoteErr("tables", "connect", err)
	}
	client := svc.NewClient(tableName)
	if _, err := client.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return nil, remoteErr("tables", "create table", err)
		}
	}
	return newTablesRemote(client, boardID, interval, logger), nil
}

func newTablesRemote(table tableClient, boardID string, interval time.Duration, logger *log.Logger) *TablesRemote {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &TablesRemote{table: table, boardID: boardID, interval: interval, logger: logger}
}

func (t *TablesRemote) Write(ctx context.Context, b *domain.Board) error {
	data, err := encode(b)
	if err != nil {
		return err
	}
	payload, err := sonic.ConfigStd.Marshal(boardEntity{
		PartitionKey: BoardPartition,
		RowKey:       t.boardID,
		Document:     string(data),
	})
	if err != nil {
		return err
	}
	_, err = t.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return remoteErr("tables", "upsert", err)
}

func (t *TablesRemote) Subscribe(ctx context.Context) (<-chan Snapshot, error) {
	out := make(chan Snapshot)
	go func() {
		defer close(out)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		var last string
		first := true
		for {
			etag, snap, err := t.fetch(ctx)
			switch {
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				t.logger.WithError(err).Warn("board poll failed")
				// Report the next successful poll even if the ETag is unchanged.
				first = true
				if !deliver(ctx, out, Snapshot{Err: err}) {
					return
				}
			case first || etag != last:
				last, first = etag, false
				if !deliver(ctx, out, snap) {
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out, nil
}

// fetch returns an empty etag when the entity does not exist.
func (t *TablesRemote) fetch(ctx context.Context) (string, Snapshot, error) {
	resp, err := t.table.GetEntity(ctx, BoardPartition, t.boardID, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return "", Snapshot{}, nil
		}
		return "", Snapshot{}, remoteErr("tables", "get", err)
	}
	var ent boardEntity
	if err := sonic.ConfigStd.Unmarshal(resp.Value, &ent); err != nil {
		return string(resp.ETag), Snapshot{Err: &domain.ShapeError{Source: "tables entity", Err: err}}, nil
	}
	return string(resp.ETag), decodeSnapshot([]byte(ent.Document)), nil
}

func (t *TablesRemote) Close() error { return nil }
