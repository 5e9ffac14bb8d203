package server

import (
	"encoding/json"
	"strings"
)

// The voice platform has shipped caller ids and transcripts under several
// field names and nestings over time. callEnvelope accepts them all; the
// accessor functions below pick the first usable value. Events with no usable
// caller or transcript are acknowledged and skipped, never a crash.

type callTurn struct {
	Role    string `json:"role"`
	Speaker string `json:"speaker"`
	Message string `json:"message"`
	Text    string `json:"text"`
	Content string `json:"content"`
}

type callEnvelope struct {
	Data           *callEnvelope `json:"data"`
	ConversationID string        `json:"conversation_id"`
	UserID         string        `json:"user_id"`
	CallerID       string        `json:"caller_id"`
	CallerIDAlt    string        `json:"callerId"`
	From           string        `json:"from"`
	FromUpper      string        `json:"From"`
	Call           *struct {
		From string `json:"from"`
	} `json:"call"`
	Metadata *struct {
		CallerID string `json:"caller_id"`
	} `json:"metadata"`
	Analysis *struct {
		TranscriptSummary string `json:"transcript_summary"`
	} `json:"analysis"`
	Transcript json.RawMessage `json:"transcript"`
	Messages   []callTurn      `json:"messages"`
	Turns      []callTurn      `json:"turns"`
}

// event returns the nested data envelope when present, else the body itself.
func (e *callEnvelope) event() *callEnvelope {
	if e.Data != nil {
		return e.Data
	}
	return e
}

// callerAddress picks the raw caller id out of whichever field carries it.
func (e *callEnvelope) callerAddress() string {
	ev := e.event()
	candidates := []string{}
	if ev.Metadata != nil {
		candidates = append(candidates, ev.Metadata.CallerID)
	}
	candidates = append(candidates, ev.UserID, e.CallerID, e.CallerIDAlt, e.From, e.FromUpper)
	if e.Call != nil {
		candidates = append(candidates, e.Call.From)
	}
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}

// externalCallID is the voice platform's id for the completed call.
func (e *callEnvelope) externalCallID() string {
	if id := e.event().ConversationID; id != "" {
		return id
	}
	return e.ConversationID
}

// upstreamSummary returns the platform-side transcript summary when present.
func (e *callEnvelope) upstreamSummary() string {
	ev := e.event()
	if ev.Analysis != nil {
		return strings.TrimSpace(ev.Analysis.TranscriptSummary)
	}
	return ""
}

// transcriptText flattens whichever transcript shape arrived into
// "ROLE: text" lines. Prefers the platform summary, then the turn arrays,
// then a flat transcript string.
func (e *callEnvelope) transcriptText() string {
	ev := e.event()
	if s := e.upstreamSummary(); s != "" {
		return s
	}

	turns := ev.Turns
	if len(turns) == 0 {
		turns = ev.Messages
	}
	if len(turns) == 0 && len(ev.Transcript) > 0 {
		// transcript may be an array of turns or a flat string
		var arr []callTurn
		if err := json.Unmarshal(ev.Transcript, &arr); err == nil {
			turns = arr
		} else {
			var flat string
			if err := json.Unmarshal(ev.Transcript, &flat); err == nil {
				return strings.TrimSpace(flat)
			}
		}
	}

	var lines []string
	for _, t := range turns {
		role := t.Role
		if role == "" {
			role = t.Speaker
		}
		if role == "" {
			role = "USER"
		}
		text := t.Message
		if text == "" {
			text = t.Text
		}
		if text == "" {
			text = t.Content
		}
		if text == "" {
			continue
		}
		lines = append(lines, strings.ToUpper(role)+": "+text)
	}
	return strings.Join(lines, "\n")
}
