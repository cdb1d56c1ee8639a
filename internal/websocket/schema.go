package websocket

import (
	"encoding/json"

	"github.com/stemsi/cbt-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer       Action = "answer"
	ActionNavigate     Action = "navigate"
	ActionBeginSubmit  Action = "begin_submit"
	ActionCancelSubmit Action = "cancel_submit"
	ActionSubmit       Action = "submit"
	ActionVisibility   Action = "visibility"
	ActionBlur         Action = "blur"
	ActionPing         Action = "ping"
)

// RequestPayload carries every client action. Only the fields relevant to
// the action are read.
type RequestPayload struct {
	Action   Action          `json:"action"`
	Position *int            `json:"position,omitempty"`
	Answer   json.RawMessage `json:"ans,omitempty"`
	Hidden   bool            `json:"hidden,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError           Event = "error"
	EventPong            Event = "pong"
	EventTick            Event = "tick"
	EventSaved           Event = "saved"
	EventNavigated       Event = "navigated"
	EventSubmitPending   Event = "submit_pending"
	EventSubmitCancelled Event = "submit_cancelled"
	EventGraded          Event = "graded"
	EventViolation       Event = "violation"
)

type TickResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remainingSeconds"`
}

type PositionResponse struct {
	Event    Event `json:"event"`
	Position int   `json:"position"`
}

type GradedResponse struct {
	Event        Event           `json:"event"`
	EndReason    model.EndReason `json:"endReason"`
	Score        int             `json:"score"`
	CorrectCount int             `json:"correctCount"`
	Total        int             `json:"totalQuestions"`
}

type EndedResponse struct {
	Event     Event           `json:"event"`
	EndReason model.EndReason `json:"endReason"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Reload    bool            `json:"reload,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type SimpleResponse struct {
	Event Event `json:"event"`
}
