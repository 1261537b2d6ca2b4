package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const streamKeepAlive = 30 * time.Second

// streamCards pushes the card sequence of a project as server-sent events:
// once on connect and again after every change to the open session.
func (h *handlers) streamCards(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return h.fail(c, "session", err)
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	c.Response().WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	send := true
	for {
		if send {
			data, err := sonic.Marshal(cardsResponse{Cards: s.Cards()})
			if err != nil {
				h.log.WithError(err).Error("marshal cards")
				return err
			}
			if err := writeEvent(c, flusher, []byte("data: "), data, []byte("\n\n")); err != nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.Done():
			_ = writeEvent(c, flusher, []byte("event: closed\ndata: {}\n\n"))
			return nil
		case <-keepAlive.C:
			if err := writeEvent(c, flusher, []byte(": ping\n\n")); err != nil {
				return nil
			}
			send = false
		case <-ch:
			send = true
		}
	}
}

func writeEvent(c echo.Context, flusher http.Flusher, chunks ...[]byte) error {
	for _, b := range chunks {
		if _, err := c.Response().Write(b); err != nil {
			return err
		}
	}
	flusher.Flush()
	return nil
}
