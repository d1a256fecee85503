// Package api serves the static layout and the latest frame over HTTP.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"metro-simulator/internal/sim"
	"metro-simulator/internal/transit"
)

// Layout is the part of the simulation that never changes after start-up.
type Layout interface {
	Stations() []transit.StationPosition
	Lines() []sim.LineView
}

// Frames returns the most recent tick.
type Frames interface {
	Latest() (sim.TickResult, bool)
}

type Server struct {
	app    *fiber.App
	layout Layout
	frames Frames
}

func NewServer(layout Layout, frames Frames) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			AppName:               "metro-simulator",
		}),
		layout: layout,
		frames: frames,
	}
	s.app.Use(newLogger())

	s.app.Get("/healthz", s.healthz)
	s.app.Get("/stations", s.listStations)
	s.app.Get("/lines", s.listLines)
	s.app.Get("/lines/:id", s.getLine)
	s.app.Get("/trains", s.listTrains)
	s.app.Get("/trains/:id", s.getTrain)
	s.app.Get("/tick", s.getTick)
	return s
}

func (s *Server) App() *fiber.App { return s.app }

// Listen serves in the background until Shutdown.
func (s *Server) Listen(addr string) {
	go func() {
		if err := s.app.Listen(addr); err != nil {
			log.Error().Err(err).Msg("api server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("api listening")
}

func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

func (s *Server) healthz(c *fiber.Ctx) error {
	res, ok := s.frames.Latest()
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "starting",
		})
	}
	return c.JSON(fiber.Map{
		"status":   "ok",
		"lastTick": res.At,
		"trains":   len(res.Trains),
	})
}

func (s *Server) listStations(c *fiber.Ctx) error {
	stations := s.layout.Stations()
	if line := c.Query("line"); line != "" {
		filtered := make([]transit.StationPosition, 0, len(stations))
		for _, st := range stations {
			if st.LineID == line {
				filtered = append(filtered, st)
			}
		}
		stations = filtered
	}
	return c.JSON(stations)
}

func (s *Server) listLines(c *fiber.Ctx) error {
	return c.JSON(s.layout.Lines())
}

func (s *Server) getLine(c *fiber.Ctx) error {
	id := c.Params("id")
	for _, l := range s.layout.Lines() {
		if l.ID == id {
			return c.JSON(l)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "Could not find Line matching identifier",
	})
}

func (s *Server) listTrains(c *fiber.Ctx) error {
	res, _ := s.frames.Latest()
	trains := res.Trains
	if trains == nil {
		trains = []transit.TrainPosition{}
	}
	if line := c.Query("line"); line != "" {
		filtered := make([]transit.TrainPosition, 0, len(trains))
		for _, t := range trains {
			if t.LineID == line {
				filtered = append(filtered, t)
			}
		}
		trains = filtered
	}
	return c.JSON(trains)
}

func (s *Server) getTrain(c *fiber.Ctx) error {
	id := c.Params("id")
	res, _ := s.frames.Latest()
	for _, t := range res.Trains {
		if t.TripID == id {
			return c.JSON(t)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "Could not find Train matching trip identifier",
	})
}

func (s *Server) getTick(c *fiber.Ctx) error {
	res, ok := s.frames.Latest()
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(res)
}
