package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/devcage/devcage/internal/utils"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is already CORS-guarded at the middleware layer
	CheckOrigin: func(r *http.Request) bool { return true },
}

// operationEvents streams snapshot updates for one operation as
// server-sent events until the operation settles or the client leaves.
func (s *Server) operationEvents(c *gin.Context) {
	id := c.Param("id")
	updates, unsubscribe, err := s.orchestrator.Watch(id)
	if err != nil {
		utils.MapError(c, err)
		return
	}
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				s.logger.WithError(err).Error("failed to marshal operation snapshot")
				return false
			}
			sse.Encode(w, sse.Event{
				Id:    snap.ID,
				Event: string(snap.Status),
				Data:  string(payload),
			})
			return !snap.Done()
		case <-c.Request.Context().Done():
			return false
		}
	})
}

type logsQuery struct {
	Tail   string `form:"tail" binding:"omitempty,max=10"`
	Follow bool   `form:"follow"`
}

// containerLogs returns container output. Plain requests get a one-shot
// tail; websocket upgrades get a live stream when follow is set.
func (s *Server) containerLogs(c *gin.Context) {
	var query logsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.BadRequest(c, "invalid query parameters: "+err.Error())
		return
	}
	if query.Tail == "" {
		query.Tail = "100"
	}

	name := c.Param("name")
	if websocket.IsWebSocketUpgrade(c.Request) {
		s.streamLogsWebsocket(c, name, query)
		return
	}

	reader, err := s.adapter.Logs(c.Request.Context(), name, query.Tail, false)
	if err != nil {
		utils.MapError(c, err)
		return
	}
	defer reader.Close()

	c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	// Docker multiplexes stdout/stderr on one connection; demux into the
	// same response body.
	if _, err := stdcopy.StdCopy(c.Writer, c.Writer, reader); err != nil {
		s.logger.WithError(err).WithField("container", name).Debug("log copy ended")
	}
}

func (s *Server) streamLogsWebsocket(c *gin.Context, name string, query logsQuery) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	reader, err := s.adapter.Logs(c.Request.Context(), name, query.Tail, query.Follow)
	if err != nil {
		deadline := time.Now().Add(time.Second)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()), deadline)
		return
	}
	defer reader.Close()

	// Drain client frames so close messages are noticed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				reader.Close()
				return
			}
		}
	}()

	writer := &wsLogWriter{conn: conn}
	if _, err := stdcopy.StdCopy(writer, writer, reader); err != nil {
		s.logger.WithError(err).WithField("container", name).Debug("websocket log stream ended")
	}

	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

// wsLogWriter adapts a websocket connection to io.Writer, one text frame
// per write.
type wsLogWriter struct {
	conn *websocket.Conn
}

func (w *wsLogWriter) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
