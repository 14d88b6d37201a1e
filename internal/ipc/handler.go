package ipc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"nbwatchd/internal/config"
	"nbwatchd/internal/journal"
	"nbwatchd/internal/logging"
	"nbwatchd/internal/monitor"
)

// DaemonHandler dispatches client messages to the engine, the active
// configuration, and the change journal.
type DaemonHandler struct {
	mu      sync.RWMutex
	version string
	server  *Server
	mon     *monitor.Monitor
	cfg     *config.Config
	jour    *journal.Journal
	log     *logging.Logger

	// applySettings installs a validated configuration; wired by the
	// daemon so hot updates flow through one place.
	applySettings func(*config.Config)
}

// DaemonHandlerConfig configures the daemon handler.
type DaemonHandlerConfig struct {
	Version       string
	Monitor       *monitor.Monitor
	Config        *config.Config
	Journal       *journal.Journal
	Log           *logging.Logger
	ApplySettings func(*config.Config)
}

// NewDaemonHandler creates the daemon-side message handler.
func NewDaemonHandler(cfg DaemonHandlerConfig) *DaemonHandler {
	if cfg.Log == nil {
		cfg.Log = logging.Default()
	}
	return &DaemonHandler{
		version:       cfg.Version,
		mon:           cfg.Monitor,
		cfg:           cfg.Config,
		jour:          cfg.Journal,
		log:           cfg.Log,
		applySettings: cfg.ApplySettings,
	}
}

// SetServer attaches the server after construction; the handler needs it
// for status (editor presence, uptime).
func (h *DaemonHandler) SetServer(s *Server) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.server = s
}

// SetMonitor attaches the engine. The handler, server, editor bridge, and
// engine reference each other, so one of the links is closed after
// construction.
func (h *DaemonHandler) SetMonitor(m *monitor.Monitor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mon = m
}

func (h *DaemonHandler) monitor() *monitor.Monitor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mon
}

// SetConfig swaps the configuration the handler reports and extends.
func (h *DaemonHandler) SetConfig(cfg *config.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}

func (h *DaemonHandler) config() *config.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// HandleMessage implements Handler.
func (h *DaemonHandler) HandleMessage(ctx context.Context, conn *Conn, msg *Message) (*Message, error) {
	if h.monitor() == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, "engine not ready"), nil
	}

	switch msg.Header.Type {
	case MsgStatusRequest:
		return h.handleStatus(msg)

	case MsgDocOpened, MsgDocClosed, MsgDocSaved, MsgDocDirty:
		return h.handleDocEvent(ctx, msg)

	case MsgGetConfig:
		return h.handleGetConfig(msg)

	case MsgApplySettings:
		return h.handleApplySettings(msg)

	case MsgJournalQuery:
		return h.handleJournalQuery(msg)

	case MsgCheckNow:
		h.monitor().CheckNow()
		return NewReply(MsgAck, msg.Header.RequestID, nil), nil

	default:
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "unknown message type"), nil
	}
}

func (h *DaemonHandler) handleStatus(msg *Message) (*Message, error) {
	st := h.monitor().Status()

	h.mu.RLock()
	server := h.server
	h.mu.RUnlock()

	resp := &StatusResponse{
		Version:        h.version,
		Running:        st.Running,
		TrackedCount:   st.TrackedCount,
		PendingReloads: st.PendingReloads,
	}
	if server != nil {
		resp.StartedAt = server.StartedAt()
		resp.Uptime = time.Since(server.StartedAt()).Round(time.Second).String()
		resp.EditorConnected = server.Editor() != nil
	}
	if h.jour != nil {
		if n, err := h.jour.Count(); err == nil {
			resp.JournalEntries = n
		}
	}

	return NewResponse(MsgStatusResponse, msg.Header.RequestID, resp)
}

func (h *DaemonHandler) handleDocEvent(ctx context.Context, msg *Message) (*Message, error) {
	var ev DocEvent
	if err := Decode(msg.Payload, &ev); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid document event"), nil
	}
	if ev.Path == "" {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "missing path"), nil
	}

	mon := h.monitor()
	switch msg.Header.Type {
	case MsgDocOpened:
		mon.DocumentOpened(ctx, ev.Path, ev.Dirty)
	case MsgDocClosed:
		mon.DocumentClosed(ev.Path)
	case MsgDocSaved:
		mon.DocumentSaved(ev.Path, ev.SavedAt)
	case MsgDocDirty:
		mon.SetDirty(ev.Path, ev.Dirty)
	}

	return NewReply(MsgAck, msg.Header.RequestID, nil), nil
}

func (h *DaemonHandler) handleGetConfig(msg *Message) (*Message, error) {
	data, err := json.Marshal(h.config())
	if err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
	}
	return NewResponse(MsgGetConfigResp, msg.Header.RequestID, &GetConfigResponse{Config: data})
}

func (h *DaemonHandler) handleApplySettings(msg *Message) (*Message, error) {
	var req ApplySettingsRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid settings request"), nil
	}

	updated, err := config.ApplySettingsJSON(h.config(), req.Settings)
	if err != nil {
		h.log.Warn("settings update rejected", "error", err)
		return NewResponse(MsgApplySettingsResp, msg.Header.RequestID, &ApplySettingsResponse{
			Success: false,
			Error:   err.Error(),
		})
	}

	h.SetConfig(updated)
	if h.applySettings != nil {
		h.applySettings(updated)
	}
	h.log.Info("settings updated over ipc")

	return NewResponse(MsgApplySettingsResp, msg.Header.RequestID, &ApplySettingsResponse{Success: true})
}

func (h *DaemonHandler) handleJournalQuery(msg *Message) (*Message, error) {
	if h.jour == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrNotFound, "journal disabled"), nil
	}

	var q JournalQuery
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &q); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid journal query"), nil
		}
	}
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = 50
	}

	var (
		rows []journal.Entry
		err  error
	)
	if q.Path != "" {
		rows, err = h.jour.RecentByPath(q.Path, q.Limit)
	} else {
		rows, err = h.jour.Recent(q.Limit)
	}
	if err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
	}

	entries := make([]JournalEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, JournalEntry{
			ID:         r.ID,
			RecordedAt: r.RecordedAt,
			Path:       r.Path,
			ObservedAt: r.ObservedAt,
			Source:     r.Source,
			Class:      r.Class,
			Action:     r.Action,
			Outcome:    r.Outcome,
			Detail:     r.Detail,
		})
	}

	return NewResponse(MsgJournalResp, msg.Header.RequestID, &JournalResponse{Entries: entries})
}
