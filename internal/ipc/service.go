// Package ipc exposes the daemon on the session bus: well-known name
// org.jasper.Daemon, object /org/jasper/Daemon, interface
// org.jasper.Daemon1. Frontends pull insights through the methods and
// subscribe to the InsightUpdated signal for pushes. No handler lets an
// internal error escape; failures turn into placeholder tuples or false
// returns with user-safe text.
package ipc

import (
	"context"
	"errors"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog/log"

	"github.com/jasper-companion/jasper/internal/daemon"
)

// errNameHasNoOwner mirrors the D-Bus NameHasNoOwner condition; the
// godbus/dbus library does not export a sentinel for it.
var errNameHasNoOwner = errors.New("dbus: name has no owner")

// Bus identity, fixed by the frontend protocol. Tuple shapes are part of
// the contract: adding fields is a breaking change.
const (
	BusName       = "org.jasper.Daemon"
	ObjectPath    = "/org/jasper/Daemon"
	InterfaceName = "org.jasper.Daemon1"
)

const (
	signalInsightUpdated = InterfaceName + ".InsightUpdated"
	signalDaemonStopping = InterfaceName + ".DaemonStopping"
)

// Service owns the bus connection and serves the daemon object.
type Service struct {
	conn *dbus.Conn
	core *daemon.Core
}

// Start connects to the session bus, claims the well-known name and
// exports the daemon object. The returned service stays valid until
// Close.
func Start(core *daemon.Core) (*Service, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}

	s := &Service{conn: conn, core: core}
	if err := conn.Export(s, ObjectPath, InterfaceName); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.Export(introspect.NewIntrospectable(s.introspection()), ObjectPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		conn.Close()
		return nil, err
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, errNameHasNoOwner
	}

	log.Info().Str("component", "ipc").Str("name", BusName).Msg("D-Bus service started")
	return s, nil
}

// Close emits DaemonStopping best-effort and releases the connection.
func (s *Service) Close() {
	s.core.EmitStopping()
	if err := s.conn.Close(); err != nil {
		log.Debug().Str("component", "ipc").Err(err).Msg("bus close failed")
	}
}

// Emitter returns a signal emitter bound to this connection.
func (s *Service) Emitter() *SignalEmitter {
	return &SignalEmitter{conn: s.conn}
}

// ─── Methods (org.jasper.Daemon1) ───────────────────────────────────────────

// GetLatestInsight returns (id, emoji, text, context_hash) for the newest
// insight, or a placeholder tuple when the store is empty.
func (s *Service) GetLatestInsight() (int64, string, string, string, *dbus.Error) {
	insight, err := s.core.LatestInsight()
	if err != nil {
		log.Warn().Str("component", "ipc").Err(err).Msg("latest insight read failed")
		return 0, "⚠️", "Error retrieving insights", "", nil
	}
	if insight == nil {
		return 0, "🔍", "No insights available", "", nil
	}
	return insight.ID, insight.Emoji, insight.Text, insight.ContextHash, nil
}

// GetInsightById returns a stored insight, or a placeholder when missing.
func (s *Service) GetInsightById(id int64) (int64, string, string, string, *dbus.Error) {
	insight, err := s.core.InsightByID(id)
	if err != nil {
		log.Warn().Str("component", "ipc").Int64("id", id).Err(err).Msg("insight read failed")
		return 0, "⚠️", "Error retrieving insight", "", nil
	}
	if insight == nil {
		return 0, "❓", "Insight not found", "", nil
	}
	return insight.ID, insight.Emoji, insight.Text, insight.ContextHash, nil
}

// RegisterFrontend upserts a frontend liveness record. A non-positive pid
// is recorded as unknown.
func (s *Service) RegisterFrontend(frontendID string, pid int32) (bool, *dbus.Error) {
	var pidPtr *int
	if pid > 0 {
		p := int(pid)
		pidPtr = &p
	}
	if err := s.core.RegisterFrontend(frontendID, pidPtr); err != nil {
		log.Error().Str("component", "ipc").Str("frontend", frontendID).Err(err).
			Msg("frontend registration failed")
		return false, nil
	}
	return true, nil
}

// UnregisterFrontend deletes a frontend record.
func (s *Service) UnregisterFrontend(frontendID string) (bool, *dbus.Error) {
	if err := s.core.UnregisterFrontend(frontendID); err != nil {
		log.Error().Str("component", "ipc").Str("frontend", frontendID).Err(err).
			Msg("frontend unregistration failed")
		return false, nil
	}
	return true, nil
}

// Heartbeat refreshes a frontend's liveness window.
func (s *Service) Heartbeat(frontendID string) (bool, *dbus.Error) {
	if err := s.core.Heartbeat(frontendID); err != nil {
		log.Warn().Str("component", "ipc").Str("frontend", frontendID).Err(err).
			Msg("heartbeat update failed")
		return false, nil
	}
	return true, nil
}

// ForceRefresh runs one synchronous analysis iteration.
func (s *Service) ForceRefresh() (bool, *dbus.Error) {
	if err := s.core.ForceRefresh(context.Background()); err != nil {
		log.Error().Str("component", "ipc").Err(err).Msg("forced refresh failed")
		return false, nil
	}
	return true, nil
}

// GetStatus returns (running, active_frontends, insights_count).
func (s *Service) GetStatus() (bool, uint32, int64, *dbus.Error) {
	status, err := s.core.GetStatus()
	if err != nil {
		log.Error().Str("component", "ipc").Err(err).Msg("status read failed")
		return false, 0, 0, nil
	}
	return status.Running, uint32(status.ActiveFrontends), status.InsightsCount, nil
}

// Stop clears the daemon running flag; the loop exits on its next pass.
func (s *Service) Stop() (bool, *dbus.Error) {
	s.core.Stop()
	return true, nil
}

// ─── Introspection ──────────────────────────────────────────────────────────

func (s *Service) introspection() *introspect.Node {
	return &introspect.Node{
		Name: ObjectPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: InterfaceName,
				Methods: []introspect.Method{
					{Name: "GetLatestInsight", Args: []introspect.Arg{
						{Name: "id", Type: "x", Direction: "out"},
						{Name: "emoji", Type: "s", Direction: "out"},
						{Name: "text", Type: "s", Direction: "out"},
						{Name: "context_hash", Type: "s", Direction: "out"},
					}},
					{Name: "GetInsightById", Args: []introspect.Arg{
						{Name: "insight_id", Type: "x", Direction: "in"},
						{Name: "id", Type: "x", Direction: "out"},
						{Name: "emoji", Type: "s", Direction: "out"},
						{Name: "text", Type: "s", Direction: "out"},
						{Name: "context_hash", Type: "s", Direction: "out"},
					}},
					{Name: "RegisterFrontend", Args: []introspect.Arg{
						{Name: "frontend_id", Type: "s", Direction: "in"},
						{Name: "pid", Type: "i", Direction: "in"},
						{Name: "ok", Type: "b", Direction: "out"},
					}},
					{Name: "UnregisterFrontend", Args: []introspect.Arg{
						{Name: "frontend_id", Type: "s", Direction: "in"},
						{Name: "ok", Type: "b", Direction: "out"},
					}},
					{Name: "Heartbeat", Args: []introspect.Arg{
						{Name: "frontend_id", Type: "s", Direction: "in"},
						{Name: "ok", Type: "b", Direction: "out"},
					}},
					{Name: "ForceRefresh", Args: []introspect.Arg{
						{Name: "ok", Type: "b", Direction: "out"},
					}},
					{Name: "GetStatus", Args: []introspect.Arg{
						{Name: "running", Type: "b", Direction: "out"},
						{Name: "active_frontends", Type: "u", Direction: "out"},
						{Name: "insights_count", Type: "x", Direction: "out"},
					}},
					{Name: "Stop", Args: []introspect.Arg{
						{Name: "ok", Type: "b", Direction: "out"},
					}},
				},
				Signals: []introspect.Signal{
					{Name: "InsightUpdated", Args: []introspect.Arg{
						{Name: "id", Type: "x"},
						{Name: "emoji", Type: "s"},
						{Name: "preview", Type: "s"},
					}},
					{Name: "DaemonStopping"},
				},
			},
		},
	}
}

// ─── Signal emitter ─────────────────────────────────────────────────────────

// SignalEmitter pushes org.jasper.Daemon1 signals over an existing bus
// connection.
type SignalEmitter struct {
	conn *dbus.Conn
}

// EmitInsightUpdated announces a freshly persisted insight.
func (e *SignalEmitter) EmitInsightUpdated(insightID int64, emoji, preview string) error {
	if err := e.conn.Emit(ObjectPath, signalInsightUpdated, insightID, emoji, preview); err != nil {
		return err
	}
	log.Debug().Str("component", "ipc").Int64("insight_id", insightID).
		Msg("emitted InsightUpdated signal")
	return nil
}

// EmitDaemonStopping announces graceful shutdown.
func (e *SignalEmitter) EmitDaemonStopping() error {
	return e.conn.Emit(ObjectPath, signalDaemonStopping)
}
