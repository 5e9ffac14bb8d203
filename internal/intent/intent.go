// Package intent runs the background extraction pass over an inbound text:
// profile details (name, email) and requests to have a past call transcript
// sent out. It consumes the position-labelled transcript list produced by the
// transcripts package.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"concierge/internal/llm"
	"concierge/internal/transcripts"
)

// keywordRe gates the extraction call: no keyword, no LLM spend.
var keywordRe = regexp.MustCompile(`(?i)\b(transcript|transcripts|email|send|call|calls|recent|yes|yep|yeah|yup|sure|please|ok|okay|notes|summary|record|recording|copy|forward|share|last|previous|ago|conversation|chat|meeting|talk)\b`)

// Relevant reports whether the text is worth an extraction pass.
func Relevant(text string) bool {
	return keywordRe.MatchString(text)
}

type Request struct {
	UserText     string
	CurrentName  string
	CurrentEmail string
	History      string
	Transcripts  []transcripts.Positioned
	Now          time.Time
}

type Result struct {
	FullName              string `json:"full_name"`
	Email                 string `json:"email"`
	TranscriptIDToSend    string `json:"transcript_id_to_send"`
	TranscriptDescription string `json:"transcript_description"`
}

type Extractor struct {
	gen llm.Client
}

func NewExtractor(gen llm.Client) *Extractor {
	return &Extractor{gen: gen}
}

// Extract maps the user's text onto profile updates and, when a reference to
// a past call resolves, the external id of the transcript to send.
func (e *Extractor) Extract(ctx context.Context, req Request) (*Result, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, err
	}

	resp, err := e.gen.GenerateJSON(ctx, []llm.Message{{Role: "system", Content: prompt}})
	if err != nil {
		return nil, fmt.Errorf("intent generation: %w", err)
	}

	var res Result
	if err := json.Unmarshal([]byte(resp.Content), &res); err != nil {
		return nil, fmt.Errorf("intent response is not valid JSON: %w", err)
	}
	res.FullName = cleanNull(res.FullName)
	res.Email = cleanNull(res.Email)
	res.TranscriptIDToSend = cleanNull(res.TranscriptIDToSend)
	res.TranscriptDescription = cleanNull(res.TranscriptDescription)
	return &res, nil
}

func buildPrompt(req Request) (string, error) {
	list, err := json.Marshal(req.Transcripts)
	if err != nil {
		return "", fmt.Errorf("marshal transcript list: %w", err)
	}
	name := req.CurrentName
	if name == "" {
		name = "null"
	}
	email := req.CurrentEmail
	if email == "" {
		email = "null"
	}
	now := req.Now.Format("Monday, January 2, 2006 3:04 PM MST")

	return strings.Join([]string{
		fmt.Sprintf("Analyze the user's latest text message: %q", req.UserText),
		fmt.Sprintf("Current DB Data: Name=%s, Email=%s", name, email),
		"CURRENT LIVE DATE AND TIME: " + now,
		"",
		"Recent Chat Context:",
		req.History,
		"",
		"Available Transcripts, already sorted NEWEST to OLDEST (position 1 = most recent call):",
		string(list),
		"",
		"CRITICAL INSTRUCTIONS FOR TIMELINE SELECTION:",
		"1. Extract full_name and email if present.",
		"2. Determine whether a transcript should be sent:",
		"   - \"Most recent\" or a plain \"Yes\" = the transcript at position 1.",
		"   - \"N calls ago\" / \"N calls back\" = the transcript at position N+1 for \"ago\", position N for \"back\" counting from the newest.",
		"   - A specific date or relative date (\"2 days ago\") = compare against each record's timestamp and the current live date.",
		"   - A topic = match against the summary fields.",
		"   - When BOTH a date and an ordinal appear, the date reference wins.",
		"3. Generate a 'transcript_description' for the email (e.g., \"from your call on Feb 22nd regarding hiring\").",
		"",
		"Respond STRICTLY in JSON:",
		`{`,
		`  "full_name": "extracted name or null",`,
		`  "email": "extracted email or null",`,
		`  "transcript_id_to_send": "exact ID, or null",`,
		`  "transcript_description": "short description, or null"`,
		`}`,
	}, "\n"), nil
}

func cleanNull(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), "null") {
		return ""
	}
	return strings.TrimSpace(s)
}
