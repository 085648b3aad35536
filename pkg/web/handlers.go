package web

import (
	"bufio"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-fallwatch/pkg/history"
	"github.com/teslashibe/go-fallwatch/pkg/hub"
	"github.com/teslashibe/go-fallwatch/pkg/monitor"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State string `json:"status"`
	monitor.Status
}

// statusMessage is the first message on /ws/events.
type statusMessage struct {
	Kind string `json:"kind"`
	StatusResponse
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	if !s.opts.Control.Start() {
		return c.JSON(fiber.Map{"status": "already_running"})
	}
	s.logger.Info("monitoring started", "remote", c.IP())
	return c.JSON(fiber.Map{"status": "started"})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if !s.opts.Control.Stop() {
		return c.JSON(fiber.Map{"status": "not_running"})
	}
	s.logger.Info("monitoring stopping", "remote", c.IP())
	return c.JSON(fiber.Map{"status": "stopped"})
}

func (s *Server) statusResponse() StatusResponse {
	st := s.opts.Control.Status()
	resp := StatusResponse{State: "inactive", Status: st}
	if st.Running {
		resp.State = "active"
	}
	return resp
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.statusResponse())
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleVideoFeed streams the latest annotated frame as MJPEG while the
// monitor runs. The stream ends once the monitor stops.
func (s *Server) handleVideoFeed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "multipart/x-mixed-replace; boundary=frame")
	c.Set(fiber.HeaderCacheControl, "no-cache")

	control := s.opts.Control
	buffer := s.opts.Buffer
	interval := s.opts.StreamInterval
	quality := s.opts.JPEGQuality
	logger := s.logger

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		s.mjpegClientsChanged(1)
		defer s.mjpegClientsChanged(-1)

		var last uint64
		for control.Running() {
			f, v := buffer.Latest()
			if f != nil && v != last {
				data, err := f.JPEG(quality)
				if err != nil {
					logger.Warn("encode stream frame", "error", err)
					return
				}
				last = v
				if _, err := w.WriteString("--frame\r\nContent-Type: image/jpeg\r\n\r\n"); err != nil {
					return
				}
				if _, err := w.Write(data); err != nil {
					return
				}
				if _, err := w.WriteString("\r\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					logger.Debug("mjpeg client disconnected", "error", err)
					return
				}
			}
			time.Sleep(interval)
		}
	})
	return nil
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.opts.History == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "history disabled"})
	}
	records, err := s.opts.History.List(c.UserContext(), c.QueryInt("limit", 0))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(records)
}

func (s *Server) handleEpisode(c *fiber.Ctx) error {
	if s.opts.History == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "history disabled"})
	}
	// Lifecycle events carry the nil episode; it is not an episode id.
	id, err := uuid.Parse(c.Params("episode"))
	if err != nil || id == uuid.Nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid episode id"})
	}
	records, err := s.opts.History.Episode(c.UserContext(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if len(records) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "episode not found"})
	}
	return c.JSON(records)
}

func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	if s.opts.History == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "history disabled"})
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid event id"})
	}
	img, err := s.opts.History.Snapshot(c.UserContext(), id)
	if errors.Is(err, history.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "snapshot not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	return c.Send(img)
}

// handleEventsWS sends the current status, then every monitor event.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	var initial []hub.Message
	if data, err := json.Marshal(statusMessage{Kind: "status", StatusResponse: s.statusResponse()}); err == nil {
		initial = append(initial, hub.NewTextMessage(data))
	}
	hub.Serve(s.events, c, initial...)
}

func (s *Server) handleCameraWS(c *websocket.Conn) {
	hub.Serve(s.camera, c)
}
