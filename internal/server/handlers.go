package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/petrijr/scrapeflow/internal/stream"
	"github.com/petrijr/scrapeflow/pkg/api"
)

type errorBody struct {
	Error string `json:"error"`
}

type stepView struct {
	Name    string         `json:"name"`
	Parents []string       `json:"parents,omitempty"`
	Status  api.StepStatus `json:"status"`
	Output  any            `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type runView struct {
	ID          string        `json:"id"`
	Workflow    string        `json:"workflow"`
	ParentRunID string        `json:"parentRunId,omitempty"`
	Status      api.RunStatus `json:"status"`
	Result      any           `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	Steps       []stepView    `json:"steps"`
	CreatedAt   time.Time     `json:"createdAt"`
	FinishedAt  *time.Time    `json:"finishedAt,omitempty"`
}

type eventView struct {
	Seq    uint64        `json:"seq"`
	Type   api.EventType `json:"type"`
	Step   string        `json:"step,omitempty"`
	Output any           `json:"output,omitempty"`
	Error  string        `json:"error,omitempty"`
	At     time.Time     `json:"at"`
}

func newRunView(snap *api.RunSnapshot) runView {
	v := runView{
		ID:          snap.ID,
		Workflow:    snap.Workflow,
		ParentRunID: snap.ParentRunID,
		Status:      snap.Status,
		Result:      snap.Result,
		Error:       api.FailureMessage(snap.Err),
		Steps:       make([]stepView, 0, len(snap.Steps)),
		CreatedAt:   snap.CreatedAt,
	}
	if !snap.FinishedAt.IsZero() {
		t := snap.FinishedAt
		v.FinishedAt = &t
	}
	for _, st := range snap.Steps {
		sv := stepView{
			Name:    st.Name,
			Parents: st.Parents,
			Status:  st.Status,
			Output:  st.Output,
		}
		if st.Err != nil {
			sv.Error = st.Err.Error()
		}
		v.Steps = append(v.Steps, sv)
	}
	return v
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": WelcomeMessage})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, errors.New("too many scrape requests"))
		return
	}

	// The run must outlive this request.
	id, err := s.engine.StartRun(r.Context(), s.workflow, map[string]any{})
	if err != nil {
		s.logger.Error("start scrape run failed", slog.Any("error", err))
		writeError(w, statusFor(err), err)
		return
	}

	s.logger.Info("scrape run started", slog.String("run_id", id))
	writeJSON(w, http.StatusOK, map[string]string{"messageId": id})
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := stream.Open(r.Context(), s.engine, id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	defer st.Close()

	flusher, _ := w.(http.Flusher)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	for msg, err := range st.Messages(r.Context()) {
		if err != nil {
			s.logStreamEnd(id, err)
			return
		}
		if err := stream.WriteSSE(w, msg); err != nil {
			s.logStreamEnd(id, err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if n := st.Dropped(); n > 0 {
		s.logger.Warn("stream dropped events",
			slog.String("run_id", id),
			slog.Int64("dropped", n),
		)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := stream.Open(r.Context(), s.engine, id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	defer st.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("run_id", id), slog.Any("error", err))
		return
	}
	defer conn.Close()

	// Reads are only needed to notice the client going away.
	ctx := r.Context()
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				st.Close()
				return
			}
		}
	}()

	for msg, err := range st.Messages(ctx) {
		if err != nil {
			s.logStreamEnd(id, err)
			return
		}
		if err := conn.WriteJSON(msg); err != nil {
			s.logStreamEnd(id, err)
			return
		}
	}

	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"), deadline)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	evs, err := s.engine.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	out := make([]eventView, 0, len(evs))
	for _, ev := range evs {
		out = append(out, eventView{
			Seq:    ev.Seq,
			Type:   ev.Type,
			Step:   ev.Step,
			Output: ev.Output,
			Error:  ev.Error,
			At:     ev.At,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, newRunView(snap))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusNotFound, errors.New("metrics disabled"))
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) logStreamEnd(runID string, err error) {
	if errors.Is(err, io.EOF) {
		return
	}
	s.logger.Debug("stream ended early",
		slog.String("run_id", runID),
		slog.Any("error", err),
	)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, api.ErrUnknownRun), errors.Is(err, api.ErrUnknownWorkflow):
		return http.StatusNotFound
	case errors.Is(err, api.ErrEngineClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
