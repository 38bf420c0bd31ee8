package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shsf-rail/shsf-hub/internal/events"
	"github.com/shsf-rail/shsf-hub/internal/journal"
	"github.com/shsf-rail/shsf-hub/internal/relay"
)

// commandEventBuffer holds events while a POST waits for its response.
const commandEventBuffer = 32

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Version       string      `json:"version"`
	BLE           BLEStatus   `json:"ble"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Relay         RelayStatus `json:"relay"`
	EventsDropped uint64      `json:"events_dropped"`
	WSClients     int         `json:"ws_clients"`
}

// BLEStatus describes the peripheral link.
type BLEStatus struct {
	State  string `json:"state"`
	Device string `json:"device,omitempty"`
}

// MQTTStatus describes the broker connection.
type MQTTStatus struct {
	Connected     bool `json:"connected"`
	Subscriptions int  `json:"subscriptions"`
}

// RelayStatus mirrors relay.Snapshot.
type RelayStatus struct {
	Phase      string         `json:"phase"`
	Current    *CommandStatus `json:"current,omitempty"`
	QueueDepth int            `json:"queue_depth"`
	Dispatched uint64         `json:"dispatched"`
	Answered   uint64         `json:"answered"`
	TimedOut   uint64         `json:"timed_out"`
	Failed     uint64         `json:"failed"`
}

// CommandStatus identifies a command.
type CommandStatus struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	Sender  string `json:"sender"`
}

// CommandRequest is the body of POST /api/commands.
type CommandRequest struct {
	Command string `json:"command"`
	Sender  string `json:"sender,omitempty"`

	// Wait defaults to true: the call returns once the command settles.
	Wait *bool `json:"wait,omitempty"`
}

// CommandResponse reports a submitted command and, when waited for, how it settled.
type CommandResponse struct {
	ID       string `json:"id"`
	Command  string `json:"command"`
	Sender   string `json:"sender"`
	Outcome  string `json:"outcome"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Outcome reported before the command settles.
const outcomePending = "pending"

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.relay.Snapshot()

	resp := StatusResponse{
		Version: s.version,
		Relay: RelayStatus{
			Phase:      snap.Phase.String(),
			QueueDepth: snap.QueueDepth,
			Dispatched: snap.Dispatched,
			Answered:   snap.Answered,
			TimedOut:   snap.TimedOut,
			Failed:     snap.Failed,
		},
		EventsDropped: s.events.Dropped(),
		WSClients:     s.hub.ClientCount(),
	}
	if snap.Current != nil {
		resp.Relay.Current = &CommandStatus{
			ID:      snap.Current.ID.String(),
			Command: snap.Current.Payload,
			Sender:  snap.Current.Sender,
		}
	}
	if s.link != nil {
		resp.BLE = BLEStatus{State: s.link.State(), Device: s.link.Name()}
	}
	if s.mqtt != nil {
		resp.MQTT.Connected = s.mqtt.IsConnected()
		resp.MQTT.Subscriptions = s.mqtt.SubscriptionCount()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}
	sender := req.Sender
	if sender == "" {
		sender = s.defaultSender
	}
	if strings.ContainsAny(sender, "/+#") {
		writeBadRequest(w, "sender must be a single topic segment")
		return
	}
	if s.localSender != "" && sender == s.localSender {
		writeBadRequest(w, "sender "+sender+" is reserved for the local window")
		return
	}
	wait := req.Wait == nil || *req.Wait

	// Subscribe before submitting so the settling event cannot be missed.
	var feed <-chan events.Event
	if wait {
		var unsubscribe func()
		feed, unsubscribe = s.events.Subscribe(commandEventBuffer)
		defer unsubscribe()
	}

	cmd, err := s.relay.Submit(r.Context(), req.Command, sender)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}

	resp := CommandResponse{
		ID:      cmd.ID.String(),
		Command: cmd.Payload,
		Sender:  cmd.Sender,
		Outcome: outcomePending,
	}
	if !wait {
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	timer := time.NewTimer(s.waitTimeout)
	defer timer.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-timer.C:
			writeJSON(w, http.StatusAccepted, resp)
			return
		case e, ok := <-feed:
			if !ok {
				writeJSON(w, http.StatusAccepted, resp)
				return
			}
			if e.CommandID != resp.ID {
				continue
			}
			switch e.Kind {
			case events.KindResponse:
				resp.Outcome = string(relay.OutcomeAnswered)
				resp.Response = e.Text
				writeJSON(w, http.StatusOK, resp)
				return
			case events.KindTimeout:
				resp.Outcome = string(relay.OutcomeTimeout)
				writeJSON(w, http.StatusGatewayTimeout, resp)
				return
			case events.KindWriteFailed:
				resp.Outcome = string(relay.OutcomeWriteFailed)
				resp.Error = e.Text
				writeJSON(w, http.StatusBadGateway, resp)
				return
			}
		}
	}
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, relay.ErrEmptyCommand):
		writeBadRequest(w, err.Error())
	case errors.Is(err, relay.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, ErrCodeQueueFull, err.Error())
	case errors.Is(err, relay.ErrStopped):
		writeUnavailable(w, err.Error())
	default:
		s.logger.Error("command submit failed", "error", err)
		writeInternalError(w, "failed to submit command")
	}
}

func (s *Server) handleListExchanges(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "exchange journal is disabled")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{
		Sender:  q.Get("sender"),
		Outcome: q.Get("outcome"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing exchanges failed", "error", err)
		writeInternalError(w, "failed to list exchanges")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional integer query parameter.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
