package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/crucible/internal/model"
)

// handleStreamEvents streams a job's status and progress as server-sent
// events. The first event is the current snapshot; the stream ends with a
// "done" event once the job reaches a terminal state.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, events, unsub, err := s.svc.Watch(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, "watch job", err)
		return
	}
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	sseStreamsActive.Inc()
	defer sseStreamsActive.Dec()

	w.WriteHeader(http.StatusOK)
	stream := newEventStream(w)
	if err := stream.send(job.Event(time.Now().UTC())); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = stream.done()
				return
			}
			if err := stream.send(ev); err != nil {
				return // Client gone.
			}
		case <-r.Context().Done():
			return
		}
	}
}

// eventStream frames job events as server-sent events and flushes each one.
type eventStream struct {
	w     io.Writer
	flush func()
}

func newEventStream(w http.ResponseWriter) *eventStream {
	s := &eventStream{w: w, flush: func() {}}
	if f, ok := w.(http.Flusher); ok {
		s.flush = f.Flush
	}
	return s
}

// send writes ev as the JSON payload of an unnamed event.
func (s *eventStream) send(ev model.JobEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.write("", string(b))
}

// done tells the client the job is terminal and no more events follow.
func (s *eventStream) done() error {
	return s.write("done", "stream complete")
}

// write emits one event. Each line of data gets its own "data:" field.
func (s *eventStream) write(name, data string) error {
	var buf bytes.Buffer
	if name != "" {
		buf.WriteString("event: " + name + "\n")
	}
	for line := range strings.SplitSeq(data, "\n") {
		buf.WriteString("data: " + line + "\n")
	}
	buf.WriteByte('\n')
	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return err
	}
	s.flush()
	return nil
}
