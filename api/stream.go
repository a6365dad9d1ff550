package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
	"prism-board/persistence"
)

// heartbeat is how often the stream reports sync status between boards.
var heartbeat = 5 * time.Second

func streamBoard(store BoardStore, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := c.Request().Context()
		boards := store.Watch(ctx)
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		var lastStatus persistence.Status
		for {
			select {
			case <-ctx.Done():
				return nil
			case b, ok := <-boards:
				if !ok {
					return nil
				}
				data, err := domain.MarshalDocument(b)
				if err != nil {
					logger.WithError(err).Error("encode board for stream")
					continue
				}
				if err := writeEvent(c, "board", data); err != nil {
					return nil
				}
			case <-ticker.C:
			}

			if s := store.SyncStatus(); s != lastStatus {
				data, _ := sonic.ConfigStd.Marshal(statusResponse{Status: s, SelectedTaskID: store.SelectedTaskID()})
				if err := writeEvent(c, "status", data); err != nil {
					return nil
				}
				lastStatus = s
			}
			flusher.Flush()
		}
	}
}

func writeEvent(c echo.Context, event string, data []byte) error {
	w := c.Response()
	if _, err := w.Write([]byte("event: " + event + "\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
