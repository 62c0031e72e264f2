// Package simserver is a stand-in for the simulator plugin. It listens on a
// unix socket, streams PLANE_STATE frames from a local glider model and
// applies SET_ELEVATOR and SET_PLANE_STATE commands.
package simserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/simbridge/internal/codec"
	"github.com/san-kum/simbridge/internal/integrators"
	"github.com/san-kum/simbridge/internal/models"
	"github.com/san-kum/simbridge/internal/sim"
	"github.com/san-kum/simbridge/internal/state"
)

const (
	DefaultRate = 20.0
	DefaultDt   = 0.01

	// DefaultClimbTarget is the requested climb rate in m/s.
	DefaultClimbTarget = -6.0

	// TypeAck answers a SET_PLANE_STATE once it has been applied.
	TypeAck = "ACK"
)

var ErrServerClosed = errors.New("simserver: server closed")

type Option func(*Server)

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithRate sets how many PLANE_STATE frames are sent per simulated second.
func WithRate(hz float64) Option {
	return func(s *Server) {
		if hz > 0 {
			s.rate = hz
		}
	}
}

func WithStep(dt float64) Option {
	return func(s *Server) {
		if dt > 0 {
			s.dt = dt
		}
	}
}

func WithIntegrator(integ sim.Integrator) Option {
	return func(s *Server) { s.integrator = integ }
}

// WithInitialState overrides the starting glider state.
func WithInitialState(x sim.State) Option {
	return func(s *Server) { s.x0 = x.Clone() }
}

// WithClimbTarget sets the requested climb rate reported in every frame.
func WithClimbTarget(target float64) Option {
	return func(s *Server) { s.target = target }
}

type Server struct {
	log        *slog.Logger
	rate       float64
	dt         float64
	target     float64
	integrator sim.Integrator
	x0         sim.State

	model *models.Glider
	plant *sim.Plant

	mu     sync.Mutex
	lat    lateral
	frame  uint64
	ticked chan struct{}
	conns  map[net.Conn]struct{}
	closed bool
}

func New(opts ...Option) (*Server, error) {
	s := &Server{
		log:    slog.Default(),
		rate:   DefaultRate,
		dt:     DefaultDt,
		target: DefaultClimbTarget,
		model:  models.NewGlider(),
		ticked: make(chan struct{}),
		conns:  make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.integrator == nil {
		s.integrator = integrators.NewRK4()
	}
	if s.x0 == nil {
		s.x0 = models.GliderState(1500, 38, -4, -2)
	}

	plant, err := sim.NewPlant(s.model, s.integrator, s.dt, s.x0)
	if err != nil {
		return nil, fmt.Errorf("create plant: %w", err)
	}
	s.plant = plant
	return s, nil
}

// ListenAndServe removes a stale socket file at path, listens on it and
// serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", path, err)
	}
	defer os.Remove(path)
	return s.Serve(ctx, ln)
}

// Serve steps the model in real time and accepts connections on ln until
// ctx is done. It closes ln and every open connection before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		s.shutdown(ln)
		return nil
	})
	g.Go(func() error { return s.step(ctx) })
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			if !s.track(conn) {
				conn.Close()
				return nil
			}
			s.log.Info("client connected")
			g.Go(func() error {
				s.handle(ctx, conn)
				return nil
			})
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) step(ctx context.Context) error {
	period := time.Duration(float64(time.Second) / s.rate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := s.plant.Advance(1 / s.rate); err != nil {
			var stepErr *sim.StepError
			if errors.As(err, &stepErr) {
				s.log.Warn("model diverged, restoring initial state", "time", stepErr.Time)
				if err := s.plant.Reset(s.x0); err != nil {
					return err
				}
			} else {
				return err
			}
		}

		s.mu.Lock()
		s.frame++
		close(s.ticked)
		s.ticked = make(chan struct{})
		s.mu.Unlock()
	}
}

// Telemetry renders the current model state as a PLANE_STATE document.
func (s *Server) Telemetry() state.Document {
	x, _ := s.plant.State()
	u := s.plant.Control()
	s.mu.Lock()
	lat, frame := s.lat, s.frame
	s.mu.Unlock()
	return telemetry(s.model, x, u, lat, s.target, frame)
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer s.untrack(conn)

	// Frames are built under the write lock so a state frame written after
	// an ACK never carries a snapshot taken before the command was applied.
	var writeMu sync.Mutex
	send := func(build func() codec.Command) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		frame, err := codec.Encode(build())
		if err != nil {
			return err
		}
		_, err = conn.Write(frame)
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer conn.Close()
		for {
			s.mu.Lock()
			ticked := s.ticked
			s.mu.Unlock()

			select {
			case <-ctx.Done():
				return nil
			case <-ticked:
			}
			err := send(func() codec.Command {
				return codec.NewCommand(codec.TypePlaneState, 0, s.Telemetry())
			})
			if err != nil {
				return fmt.Errorf("send state: %w", err)
			}
		}
	})
	g.Go(func() error {
		defer conn.Close()
		fr := codec.NewFrameReader(conn, codec.DefaultMaxFrame)
		for {
			frame, err := fr.Next()
			if err != nil {
				if errors.Is(err, codec.ErrFrameTooLarge) {
					s.log.Warn("dropping oversized frame")
					continue
				}
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					return io.EOF
				}
				return err
			}
			if len(bytes.TrimSpace(frame)) == 0 {
				continue
			}
			env, err := codec.Decode(frame)
			if err != nil {
				s.log.Warn("dropping malformed frame", "error", err)
				continue
			}
			if ack, ok := s.apply(env); ok {
				if err := send(func() codec.Command { return ack }); err != nil {
					return fmt.Errorf("send ack: %w", err)
				}
			}
		}
	})

	err := g.Wait()
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNRESET):
		s.log.Info("client disconnected")
	default:
		s.log.Warn("client connection failed", "error", err)
	}
}

// apply executes one inbound command and returns the reply to send, if any.
func (s *Server) apply(env codec.Envelope) (codec.Command, bool) {
	switch env.Type {
	case codec.TypeSetElevator:
		if r, ok := env.Data["yoke_pitch_ratio"].Float(); ok {
			s.plant.SetControl(sim.Control{clamp(r)})
		}
		if r, ok := env.Data["yoke_roll_ratio"].Float(); ok {
			s.mu.Lock()
			s.lat.yokeRoll = clamp(r)
			s.mu.Unlock()
		}
		return codec.Command{}, false

	case codec.TypeSetPlaneState:
		x, _ := s.plant.State()
		s.mu.Lock()
		next, lat := planeState(env.Data, x, s.lat)
		s.lat = lat
		s.mu.Unlock()
		if err := s.plant.Reset(next); err != nil {
			s.log.Warn("rejecting plane state", "error", err)
			return codec.Command{}, false
		}
		s.log.Debug("plane state applied", "request_id", env.RequestID)
		return codec.NewCommand(TypeAck, env.RequestID, state.Document{
			"for": state.String(env.Type),
		}), true

	default:
		s.log.Warn("ignoring unknown message", "type", env.Type)
		return codec.Command{}, false
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) shutdown(ln net.Listener) {
	s.mu.Lock()
	s.closed = true
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	ln.Close()
	for _, c := range conns {
		c.Close()
	}
}

func clamp(r float64) float64 {
	if r > 1 {
		return 1
	}
	if r < -1 {
		return -1
	}
	return r
}
