package web

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-linefollow/pkg/annotate"
	"github.com/teslashibe/go-linefollow/pkg/follower"
	"github.com/teslashibe/go-linefollow/pkg/hub"
)

// ResultInfo is the JSON form of a finished run.
type ResultInfo struct {
	RunID     string         `json:"run_id"`
	State     follower.State `json:"state"`
	Kind      follower.Kind  `json:"kind"`
	Error     string         `json:"error,omitempty"`
	Cycles    int            `json:"cycles"`
	ElapsedMS int64          `json:"elapsed_ms"`
}

// NewResultInfo converts a run result for display.
func NewResultInfo(r follower.Result) ResultInfo {
	return ResultInfo{
		RunID:     r.RunID,
		State:     r.State,
		Kind:      r.Kind,
		Error:     r.ErrText(),
		Cycles:    r.Cycles,
		ElapsedMS: r.Elapsed.Milliseconds(),
	}
}

// StatusResponse is returned by GET /api/status and pushed on /ws/status.
type StatusResponse struct {
	Running bool            `json:"running"`
	Loop    follower.Status `json:"loop"`
	Last    *ResultInfo     `json:"last,omitempty"`
	Viewers int             `json:"viewers"`
}

type stateEvent struct {
	RunID string         `json:"run_id"`
	State follower.State `json:"state"`
	Kind  follower.Kind  `json:"kind"`
	Err   string         `json:"error,omitempty"`
	Cycle int            `json:"cycle"`
}

func (s *Server) statusPayload() StatusResponse {
	resp := StatusResponse{
		Running: s.runner.Running(),
		Loop:    s.loop.Status(),
		Viewers: s.cameraHub.ClientCount(),
	}
	if last, ok := s.runner.Last(); ok {
		info := NewResultInfo(last)
		resp.Last = &info
	}
	return resp
}

// handleStatus returns the loop status and the last run result
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.statusPayload())
}

// handleGetTuning returns the live pipeline parameters
func (s *Server) handleGetTuning(c *fiber.Ctx) error {
	return c.JSON(s.tuning.Get())
}

// handlePutTuning applies a partial parameter update. Changes take effect
// from the next cycle and are announced on /ws/events.
func (s *Server) handlePutTuning(c *fiber.Ctx) error {
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.UseNumber()

	var params map[string]interface{}
	if err := dec.Decode(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON: " + err.Error()})
	}
	if err := s.tuning.Update(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(s.tuning.Get())
}

// handleStop ends the current run. With ?halt=true the wheels are also
// stopped immediately.
func (s *Server) handleStop(c *fiber.Ctx) error {
	if c.QueryBool("halt") {
		if err := s.runner.Halt(c.UserContext()); err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
		s.Event("halt", nil)
		return c.JSON(fiber.Map{"status": "halted"})
	}

	if err := s.runner.Stop(); err != nil {
		if errors.Is(err, follower.ErrNotRunning) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	s.Event("stop", nil)
	return c.JSON(fiber.Map{"status": "stopping"})
}

// handleResume starts a new run after the previous one ended
func (s *Server) handleResume(c *fiber.Ctx) error {
	if err := s.runner.Resume(); err != nil {
		if errors.Is(err, follower.ErrRunning) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	s.Event("resume", nil)
	return c.JSON(fiber.Map{"status": "resuming"})
}

// handleListAnnotations returns the overlay names in render order
func (s *Server) handleListAnnotations(c *fiber.Ctx) error {
	return c.JSON(s.annotations.List())
}

type annotationRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleSetAnnotation turns a named overlay on or off
func (s *Server) handleSetAnnotation(c *fiber.Ctx) error {
	var req annotationRequest
	if err := c.BodyParser(&req); err != nil || req.Enabled == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": `body must be {"enabled": bool}`})
	}
	if err := s.annotations.SetEnabled(c.Params("name"), *req.Enabled); err != nil {
		if errors.Is(err, annotate.ErrUnknown) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.annotations.List())
}

// handleCameraWS streams annotated JPEG frames
func (s *Server) handleCameraWS(c *websocket.Conn) {
	hub.NewClient(s.cameraHub, c).Run()
}

// handleStatusWS sends the current status, then every update
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var initial []hub.Message
	if data, err := json.Marshal(s.statusPayload()); err == nil {
		initial = append(initial, hub.NewJSONMessage(data))
	}
	hub.NewClient(s.statusHub, c, initial...).Run()
}

// handleEventsWS streams state changes, run results and operator actions
func (s *Server) handleEventsWS(c *websocket.Conn) {
	hub.NewClient(s.eventsHub, c).Run()
}
