package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/physioflow/internal/capture"
	"github.com/wolfman30/physioflow/internal/workflow"
	"github.com/wolfman30/physioflow/pkg/logging"
	"golang.org/x/net/websocket"
)

// DictationService is the capture side of the workflow.
type DictationService interface {
	StartCapture(ctx context.Context, sessionID string) (*workflow.View, error)
	StopCapture(ctx context.Context, sessionID string) (*workflow.View, error)
	AppendFragment(ctx context.Context, sessionID, text string, final bool) (*workflow.View, error)
	CaptureFailed(ctx context.Context, sessionID string, cause error) (*workflow.View, error)
}

// DictationInbound is what the recognizer client sends.
type DictationInbound struct {
	Type  string `json:"type"` // "fragment", "error", "unavailable", "ping"
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`
	Error string `json:"error,omitempty"`
}

// DictationOutbound is what the server sends back.
type DictationOutbound struct {
	Type       string         `json:"type"` // "capture", "error", "pong"
	Capture    *capture.State `json:"capture,omitempty"`
	Transcript string         `json:"transcript,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// DictationHandler streams speech recognition results into a session's
// transcript over a WebSocket. Capture starts on connect and stops on close.
type DictationHandler struct {
	svc    DictationService
	logger *logging.Logger
}

func NewDictationHandler(svc DictationService, logger *logging.Logger) *DictationHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &DictationHandler{svc: svc, logger: logger}
}

// Stream handles GET /api/sessions/{sessionID}/dictation
func (h *DictationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r, id)
	}).ServeHTTP(w, r)
}

func sendView(conn *websocket.Conn, view *workflow.View) error {
	return websocket.JSON.Send(conn, DictationOutbound{
		Type:       "capture",
		Capture:    &view.Capture,
		Transcript: view.Data.Transcript,
	})
}

func (h *DictationHandler) serveWS(conn *websocket.Conn, r *http.Request, id string) {
	ctx := r.Context()
	logger := h.logger.ForSession(id)

	view, err := h.svc.StartCapture(ctx, id)
	if err != nil {
		_ = websocket.JSON.Send(conn, DictationOutbound{Type: "error", Error: err.Error()})
		return
	}
	_ = sendView(conn, view)
	logger.Info("dictation: stream opened")

	defer func() {
		if _, err := h.svc.StopCapture(context.WithoutCancel(ctx), id); err != nil {
			logger.Warn("dictation: stop capture failed", "error", err)
		}
		logger.Info("dictation: stream closed")
	}()

	for {
		var msg DictationInbound
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			logger.Debug("dictation: connection closed", "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, DictationOutbound{Type: "pong"})
		case "fragment":
			view, err := h.svc.AppendFragment(ctx, id, msg.Text, msg.Final)
			if err != nil {
				_ = websocket.JSON.Send(conn, DictationOutbound{Type: "error", Error: err.Error()})
				if errors.Is(err, capture.ErrNotCapturing) || errors.Is(err, workflow.ErrSessionClosed) {
					return
				}
				continue
			}
			_ = sendView(conn, view)
		case "error", "unavailable":
			cause := capture.ErrDictationUnavailable
			if msg.Type == "error" {
				cause = errors.New(strings.TrimSpace("dictation error: " + msg.Error))
			}
			if view, err := h.svc.CaptureFailed(ctx, id, cause); err == nil {
				_ = sendView(conn, view)
			}
			return
		}
	}
}
