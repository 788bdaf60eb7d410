package web

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-gauge/pkg/gauge"
	"github.com/teslashibe/go-gauge/pkg/hub"
	"github.com/teslashibe/go-gauge/pkg/monitor"
	"github.com/teslashibe/go-gauge/pkg/params"
)

const defaultSummaryWindow = time.Hour

// CalibrationSummary is the short form of a calibration used by /api/status.
type CalibrationSummary struct {
	ID        uuid.UUID `json:"id"`
	AngleMin  float64   `json:"angle_min"`
	AngleMax  float64   `json:"angle_max"`
	AngleSpan float64   `json:"angle_span"`
	Clockwise bool      `json:"clockwise"`
}

// Status is the /api/status body.
type Status struct {
	Stats       monitor.Stats       `json:"stats"`
	Setup       gauge.Setup         `json:"setup"`
	Calibration *CalibrationSummary `json:"calibration"`
	Clients     int                 `json:"clients"`
	Uptime      string              `json:"uptime"`
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// handleValue returns the latest reading
func (s *Server) handleValue(c *fiber.Ctx) error {
	r, err := s.mon.Last()
	if errors.Is(err, monitor.ErrNoReading) {
		return errorJSON(c, fiber.StatusNotFound, "no reading yet")
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(r)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	st := Status{
		Stats:   s.mon.Stats(),
		Setup:   s.mon.Setup(),
		Clients: s.hub.ClientCount(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if cal := s.mon.Calibration(); cal != nil {
		st.Calibration = &CalibrationSummary{
			ID:        cal.ID,
			AngleMin:  cal.AngleMin,
			AngleMax:  cal.AngleMax,
			AngleSpan: cal.AngleSpan,
			Clockwise: cal.Clockwise,
		}
	}
	return c.JSON(st)
}

func (s *Server) handleCalibration(c *fiber.Ctx) error {
	cal := s.mon.Calibration()
	if cal == nil {
		return errorJSON(c, fiber.StatusNotFound, "not calibrated")
	}
	return c.JSON(cal)
}

func (s *Server) handleGetParams(c *fiber.Ctx) error {
	if s.params == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "parameter store not configured")
	}
	return c.JSON(s.params.Get())
}

// handlePutParams applies a partial update, e.g. {"center_x": 500}
func (s *Server) handlePutParams(c *fiber.Ctx) error {
	if s.params == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "parameter store not configured")
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(c.Body(), &fields); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid JSON body")
	}
	if len(fields) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "no parameters given")
	}

	if err := s.params.Update(fields); err != nil {
		if errors.Is(err, params.ErrInvalid) {
			return errorJSON(c, fiber.StatusBadRequest, err.Error())
		}
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(s.params.Get())
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.history == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "history not configured")
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return errorJSON(c, fiber.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}

	records, err := s.history.Recent(c.UserContext(), limit)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(records)
}

// handleHistorySummary aggregates the last ?since=<duration> (default 1h)
func (s *Server) handleHistorySummary(c *fiber.Ctx) error {
	if s.history == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "history not configured")
	}

	window := defaultSummaryWindow
	if v := c.Query("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return errorJSON(c, fiber.StatusBadRequest, "since must be a positive duration like 15m")
		}
		window = d
	}

	sum, err := s.history.Summary(c.UserContext(), time.Now().Add(-window))
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(sum)
}

func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	img, ok := s.mon.Snapshot()
	if !ok {
		return errorJSON(c, fiber.StatusNotFound, "no frame yet")
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return imaging.Encode(c.Response().BodyWriter(), img, imaging.PNG)
}

// handleValueWS sends the latest reading, then streams updates
func (s *Server) handleValueWS(c *websocket.Conn) {
	if r, err := s.mon.Last(); err == nil {
		if err := c.WriteJSON(Update{Type: "reading", Reading: &r}); err != nil {
			return
		}
	}
	hub.NewClient(s.hub, c).Run()
}
