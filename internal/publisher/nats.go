package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"metro-simulator/internal/metrics"
	"metro-simulator/internal/sim"
	"metro-simulator/internal/transit"
)

const engineIDHeader = "Simulator-Engine-Id"

type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSSink publishes one message per train and tick, plus one message per
// train that left the map.
//
//	<prefix>.position.<line>.<trip>
//	<prefix>.removed.<trip>
//	<prefix>.tick
type NATSSink struct {
	nc          *nats.Conn
	closed      <-chan struct{}
	conn        msgPublisher
	prefix      string
	engineID    string
	logSubjects bool
	registry    *Registry
	metrics     *metrics.Collector
}

type PositionMessage struct {
	TripID      string            `json:"tripId"`
	Handle      Handle            `json:"handle"`
	Event       string            `json:"event"` // added|moved
	LineID      string            `json:"lineId"`
	Direction   transit.Direction `json:"direction"`
	Color       string            `json:"color"`
	X           float64           `json:"x"`
	Y           float64           `json:"y"`
	Progress    float64           `json:"progress"`
	FromStation string            `json:"fromStation"`
	ToStation   string            `json:"toStation"`
	Timestamp   time.Time         `json:"timestamp"`
}

type RemovedMessage struct {
	TripID    string    `json:"tripId"`
	Handle    Handle    `json:"handle"`
	Timestamp time.Time `json:"timestamp"`
}

type TickMessage struct {
	Timestamp time.Time       `json:"timestamp"`
	DayType   transit.DayType `json:"dayType"`
	Period    string          `json:"period,omitempty"`
	Seconds   float64         `json:"seconds"`
	Trains    int             `json:"trains"`
}

// NewNATSSink connects to url, retrying with exponential backoff until ctx
// is done.
func NewNATSSink(ctx context.Context, url, prefix, engineID string, logSubjects bool, m *metrics.Collector) (*NATSSink, error) {
	closed := make(chan struct{})
	var closeOnce sync.Once
	opts := []nats.Option{
		nats.Name("metro-simulator"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSConnected.Set(0)
			}
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSConnected.Set(1)
			}
			log.Info().Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSConnected.Set(0)
			}
			log.Info().Msg("nats closed")
			closeOnce.Do(func() { close(closed) })
		}),
	}

	var nc *nats.Conn
	retry := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 6), ctx)
	err := backoff.RetryNotify(func() error {
		var err error
		nc, err = nats.Connect(url, opts...)
		return err
	}, retry, func(err error, next time.Duration) {
		log.Warn().Err(err).Str("url", url).Dur("retry_in", next).Msg("nats not ready")
	})
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	if m != nil {
		m.NATSConnected.Set(1)
	}
	s := newNATSSink(nc, prefix, engineID, logSubjects, m)
	s.nc = nc
	s.closed = closed
	return s, nil
}

func newNATSSink(conn msgPublisher, prefix, engineID string, logSubjects bool, m *metrics.Collector) *NATSSink {
	prefix = strings.Trim(prefix, ". ")
	if prefix == "" {
		prefix = "trains"
	}
	return &NATSSink{
		conn:        conn,
		prefix:      prefix,
		engineID:    engineID,
		logSubjects: logSubjects,
		registry:    NewRegistry(),
		metrics:     m,
	}
}

// Close drains pending messages and waits for the connection to close.
func (s *NATSSink) Close() {
	if s.nc == nil {
		return
	}
	if !drainAndWait(s.nc.Drain, s.closed, closeTimeout) {
		s.nc.Close()
	}
}

const closeTimeout = 10 * time.Second

// drainAndWait starts an asynchronous drain and reports whether the
// connection closed within timeout.
func drainAndWait(drain func() error, closed <-chan struct{}, timeout time.Duration) bool {
	if err := drain(); err != nil {
		log.Warn().Err(err).Msg("nats drain")
		return false
	}
	select {
	case <-closed:
		return true
	case <-time.After(timeout):
		log.Warn().Dur("timeout", timeout).Msg("nats drain did not finish")
		return false
	}
}

func (s *NATSSink) Publish(ctx context.Context, res sim.TickResult) error {
	diff := s.registry.Plan(res.Trains)
	added := make(map[string]struct{}, len(diff.Added))
	for _, id := range diff.Added {
		added[id] = struct{}{}
	}

	for _, t := range res.Trains {
		if err := ctx.Err(); err != nil {
			return err
		}
		event := "moved"
		if _, ok := added[t.TripID]; ok {
			event = "added"
		}
		msg := PositionMessage{
			TripID:      t.TripID,
			Handle:      diff.Handles[t.TripID],
			Event:       event,
			LineID:      t.LineID,
			Direction:   t.Direction,
			Color:       t.Color,
			X:           t.X,
			Y:           t.Y,
			Progress:    t.Progress,
			FromStation: t.FromStation,
			ToStation:   t.ToStation,
			Timestamp:   res.At,
		}
		if err := s.send(positionSubject(s.prefix, t.LineID, t.TripID), msg); err != nil {
			return err
		}
	}

	for _, id := range diff.Removed {
		msg := RemovedMessage{TripID: id, Handle: diff.Handles[id], Timestamp: res.At}
		if err := s.send(s.prefix+".removed."+subjectToken(id), msg); err != nil {
			return err
		}
	}

	err := s.send(s.prefix+".tick", TickMessage{
		Timestamp: res.At,
		DayType:   res.DayType,
		Period:    res.Period,
		Seconds:   res.Seconds,
		Trains:    len(res.Trains),
	})
	if err != nil {
		return err
	}
	s.registry.Commit(diff)
	return nil
}

func (s *NATSSink) send(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if s.logSubjects {
		log.Debug().Str("subject", subject).Msg("nats publish")
	}
	msg := nats.NewMsg(subject)
	msg.Data = b
	if s.engineID != "" {
		msg.Header.Set(engineIDHeader, s.engineID)
	}
	if err := s.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if s.metrics != nil {
		s.metrics.NATSPublished.Inc()
	}
	return nil
}

func positionSubject(prefix, lineID, tripID string) string {
	return fmt.Sprintf("%s.position.%s.%s", prefix, subjectToken(lineID), subjectToken(tripID))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
