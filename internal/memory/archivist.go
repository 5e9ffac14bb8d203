// Package memory maintains the append-only long-term memory log per user.
//
// Fact extraction is delegated to an auxiliary generation call, but the
// non-destructive contract is enforced here: an update is persisted only when
// the generated text keeps every existing line verbatim, in order, with new
// lines appended at the end. Anything else leaves the stored memory untouched.
package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"concierge/internal/llm"
)

// Channel tags recoverable from each memory line.
const (
	TagSMS   = "[SMS]"
	TagVoice = "[VOICE]"
)

type Users interface {
	UpdateUserMemory(ctx context.Context, userID, memory string) error
}

type Archivist struct {
	gen    llm.Client
	users  Users
	everyN int
	now    func() time.Time
}

// NewArchivist builds an archivist updating on every everyN-th user message
// within a conversation. Values below 1 are clamped to 1.
func NewArchivist(gen llm.Client, users Users, everyN int) *Archivist {
	if everyN < 1 {
		everyN = 1
	}
	return &Archivist{gen: gen, users: users, everyN: everyN, now: time.Now}
}

// Due reports whether the cadence calls for an archive pass after the given
// count of user messages in the conversation. Voice-call completions archive
// unconditionally and do not consult Due.
func (a *Archivist) Due(userMessageCount int) bool {
	if userMessageCount <= 0 {
		return false
	}
	return userMessageCount%a.everyN == 0
}

// Update extracts new facts from the turn and persists the extended memory.
// It returns the text now stored for the user: the new memory on success, the
// old one whenever the generation is empty, malformed, or destructive.
func (a *Archivist) Update(ctx context.Context, userID, oldMemory, userText, assistantText string) (string, error) {
	prompt := a.buildPrompt(oldMemory, userText, assistantText)

	resp, err := a.gen.Generate(ctx, []llm.Message{{Role: "system", Content: prompt}})
	if err != nil {
		return oldMemory, fmt.Errorf("memory generation: %w", err)
	}

	updated := strings.TrimSpace(resp.Content)
	if updated == "" {
		log.Printf("memory update skipped for %s: empty generation output", userID)
		return oldMemory, nil
	}
	if !AppendOnly(oldMemory, updated) {
		log.Printf("memory update rejected for %s: output does not preserve existing lines", userID)
		return oldMemory, nil
	}
	if updated == strings.TrimSpace(oldMemory) {
		// No new facts this turn; nothing to write.
		return oldMemory, nil
	}

	if err := a.users.UpdateUserMemory(ctx, userID, updated); err != nil {
		return oldMemory, err
	}
	log.Printf("user memory updated: user=%s len=%d", userID, len(updated))
	return updated, nil
}

func (a *Archivist) buildPrompt(oldMemory, userText, assistantText string) string {
	today := a.now().UTC().Format("2006-01-02")
	existing := oldMemory
	if strings.TrimSpace(existing) == "" {
		existing = "(empty)"
	}
	return strings.Join([]string{
		"You are a strict memory archiver for an AI assistant.",
		"CRITICAL RULE: NEVER delete, condense, or alter any existing memory lines. You must preserve every single historical detail exactly as it is.",
		"Your job is ONLY to extract NEW, highly specific facts from the 'New conversation turn' and APPEND them to the bottom of the existing list.",
		"If the new turn contains no new specific facts, output the 'Existing memory summary' exactly as it was.",
		"",
		"STRICT FORMATTING RULE:",
		"1. Every new line MUST start with this exact structure: [CHANNEL] [YYYY-MM-DD] [TAG] Fact.",
		"2. Replace [CHANNEL] with either " + TagSMS + " or " + TagVoice + ".",
		fmt.Sprintf("3. Replace [YYYY-MM-DD] with exactly today's date: [%s].", today),
		"4. Replace [TAG] with ONE of these categories: [NAME], [COMPANY], [FACT], [SUBJECT], [PREFERENCE], [GOAL], [ACTION].",
		"5. Capture SPECIFIC details only. No vague summaries.",
		"",
		"Existing memory summary:",
		existing,
		"",
		"New conversation turn:",
		"User: " + userText,
		"Assistant: " + assistantText,
		"",
		"Return the ENTIRE memory list (existing lines + new lines appended to the bottom). DO NOT omit any old information.",
	}, "\n")
}

// AppendOnly reports whether updated preserves old as an exact line-for-line
// prefix. Trailing whitespace on either side is ignored; line content is not.
func AppendOnly(old, updated string) bool {
	oldLines := splitLines(old)
	newLines := splitLines(updated)
	if len(newLines) < len(oldLines) {
		return false
	}
	for i, line := range oldLines {
		if newLines[i] != line {
			return false
		}
	}
	return true
}

func splitLines(s string) []string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	return lines
}
