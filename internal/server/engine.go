package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"concierge/internal/identity"
	"concierge/internal/ingest"
	"concierge/internal/intent"
	"concierge/internal/llm"
	"concierge/internal/memory"
	"concierge/internal/messaging"
	"concierge/internal/notify"
	"concierge/internal/promo"
	"concierge/internal/session"
	"concierge/internal/store"
	"concierge/internal/tasks"
	"concierge/internal/transcripts"
)

const (
	// FallbackReply goes out whenever the primary path fails; the user always
	// gets an answer, never an internal error.
	FallbackReply = "Give me just a second to pull that up for you."

	defaultSystemPrompt = "You are a helpful assistant. Keep replies short and clear."

	scopeSMS  = "sms"
	scopeCall = "call"
)

// errMalformedPayload marks inbound events missing required fields. The event
// is acknowledged to stop provider retries but produces no state change.
var errMalformedPayload = errors.New("malformed upstream payload")

type KnowledgeBase interface {
	Search(ctx context.Context, query string) string
}

type PromoSource interface {
	Current() []store.PromoItem
}

// Engine drives one inbound event end to end: identity, session, ingestion,
// reply composition, and the fan-out of post-reply background work.
type Engine struct {
	store     *store.Store
	resolver  *identity.Resolver
	sessions  *session.Manager
	gate      *ingest.Gate
	replyGen  llm.Client
	archivist *memory.Archivist
	calls     *transcripts.Index
	extractor *intent.Extractor
	capper    *promo.Capper
	notifier  *notify.Webhook
	bg        *tasks.Coordinator

	kb        KnowledgeBase    // optional
	promos    PromoSource      // optional
	messenger messaging.Sender // optional

	replyProvider string
	systemPrompt  string
	historyLimit  int
	introMessage  string
	followupDelay time.Duration
}

type EngineDeps struct {
	Store     *store.Store
	Resolver  *identity.Resolver
	Sessions  *session.Manager
	Gate      *ingest.Gate
	ReplyGen  llm.Client
	Archivist *memory.Archivist
	Calls     *transcripts.Index
	Extractor *intent.Extractor
	Capper    *promo.Capper
	Notifier  *notify.Webhook
	Tasks     *tasks.Coordinator

	KB        KnowledgeBase
	Promos    PromoSource
	Messenger messaging.Sender

	ReplyProvider string
	SystemPrompt  string
	HistoryLimit  int
	IntroMessage  string
	FollowupDelay time.Duration
}

func NewEngine(d EngineDeps) *Engine {
	if d.HistoryLimit <= 0 {
		d.HistoryLimit = 12
	}
	sys := strings.TrimSpace(d.SystemPrompt)
	if sys == "" {
		sys = defaultSystemPrompt
	}
	return &Engine{
		store:         d.Store,
		resolver:      d.Resolver,
		sessions:      d.Sessions,
		gate:          d.Gate,
		replyGen:      d.ReplyGen,
		archivist:     d.Archivist,
		calls:         d.Calls,
		extractor:     d.Extractor,
		capper:        d.Capper,
		notifier:      d.Notifier,
		bg:            d.Tasks,
		kb:            d.KB,
		promos:        d.Promos,
		messenger:     d.Messenger,
		replyProvider: d.ReplyProvider,
		systemPrompt:  sys,
		historyLimit:  d.HistoryLimit,
		introMessage:  d.IntroMessage,
		followupDelay: d.FollowupDelay,
	}
}

// leadingTagRe strips a "(SMS) " style tag the model sometimes echoes back.
var leadingTagRe = regexp.MustCompile(`^[\(\[].*?[\)\]]\s*`)

// HandleSMS processes one inbound text message and returns the reply to send.
// store.ErrAlreadyProcessed means a duplicate delivery: send no reply at all.
// Any other error means the primary path failed and the caller should send
// FallbackReply.
func (e *Engine) HandleSMS(ctx context.Context, rawFrom, body, eventID string) (string, error) {
	phone := identity.Normalize(rawFrom)
	log.Printf("START sms: phone=%s", phone)

	// Cheap duplicate check first: a provider retry must not even resolve a
	// user. The unique index behind the gate still closes the race window.
	if eventID != "" {
		seen, err := e.store.MessageEventExists(ctx, "twilio", eventID)
		if err != nil {
			e.logFailure(ctx, phone, "", "", scopeSMS, "dedup_check", err, body)
			return "", err
		}
		if seen {
			log.Printf("duplicate inbound event %s ignored", eventID)
			return "", store.ErrAlreadyProcessed
		}
	}

	userID, err := e.resolver.Resolve(ctx, rawFrom)
	if err != nil {
		e.logFailure(ctx, phone, "", "", scopeSMS, "resolve_user", err, body)
		return "", err
	}
	e.ensureIntro(userID, rawFrom)

	convID, err := e.sessions.Attach(ctx, userID, scopeSMS)
	if err != nil {
		e.logFailure(ctx, phone, userID, "", scopeSMS, "attach_conversation", err, body)
		return "", err
	}

	if _, err := e.gate.Accept(ctx, store.Message{
		ConversationID:  convID,
		Channel:         scopeSMS,
		Direction:       store.DirectionUser,
		Text:            body,
		Provider:        "twilio",
		ProviderEventID: eventID,
	}); err != nil {
		if errors.Is(err, store.ErrAlreadyProcessed) {
			log.Printf("duplicate inbound event %s lost the insert race, ignored", eventID)
			return "", err
		}
		e.logFailure(ctx, phone, userID, convID, scopeSMS, "persist_inbound", err, body)
		return "", err
	}

	reply, offered, err := e.composeReply(ctx, userID, body)
	if err != nil {
		e.logFailure(ctx, phone, userID, convID, scopeSMS, "generate_reply", err, body)
		return "", err
	}

	if _, err := e.store.InsertMessage(ctx, store.Message{
		ConversationID: convID,
		Channel:        scopeSMS,
		Direction:      store.DirectionAgent,
		Text:           reply,
		Provider:       e.replyProvider,
	}); err != nil {
		e.logFailure(ctx, phone, userID, convID, scopeSMS, "persist_reply", err, body)
		return "", err
	}

	// Post-reply work runs detached; it never delays or fails the reply.
	e.scheduleSMSFollowups(userID, convID, body, reply, offered)

	return reply, nil
}

func (e *Engine) composeReply(ctx context.Context, userID, body string) (string, []store.PromoItem, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	history, err := e.store.RecentMessages(ctx, userID, e.historyLimit)
	if err != nil {
		return "", nil, err
	}

	msgs := []llm.Message{{Role: "system", Content: e.systemPrompt}}
	msgs = append(msgs, llm.Message{Role: "system", Content: profileContext(user)})

	if e.kb != nil {
		if kbCtx := e.kb.Search(ctx, body); kbCtx != "" {
			msgs = append(msgs, llm.Message{Role: "system", Content: "Relevant Knowledge Base Context:\n\n" + kbCtx})
		}
	}
	if user.MemorySummary != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: "Long term memory about this user:\n" + user.MemorySummary})
	}

	offered := e.eligiblePromos(ctx, userID)
	if len(offered) > 0 {
		msgs = append(msgs, llm.Message{Role: "system", Content: promoContext(offered)})
	}

	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: roleFor(m), Content: channelTag(m.Channel) + " " + m.Text})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: "(SMS) " + body})

	resp, err := e.replyGen.Generate(ctx, msgs)
	if err != nil {
		return "", nil, fmt.Errorf("reply generation: %w", err)
	}
	reply := leadingTagRe.ReplaceAllString(strings.TrimSpace(resp.Content), "")
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", nil, fmt.Errorf("reply generation returned empty output")
	}
	return reply, offered, nil
}

func (e *Engine) eligiblePromos(ctx context.Context, userID string) []store.PromoItem {
	if e.promos == nil {
		return nil
	}
	items := e.promos.Current()
	if len(items) == 0 {
		return nil
	}
	eligible, err := e.capper.Eligible(ctx, userID, items)
	if err != nil {
		// Promotions are garnish; a counter read failure must not block the reply.
		log.Printf("promo eligibility check failed for %s: %v", userID, err)
		return nil
	}
	return eligible
}

func (e *Engine) scheduleSMSFollowups(userID, convID, body, reply string, offered []store.PromoItem) {
	if intent.Relevant(body) {
		e.bg.Go("sms_intent", func(ctx context.Context) error {
			return e.runIntent(ctx, userID, body)
		})
	} else {
		log.Printf("no intent keywords detected, skipping extraction")
	}

	e.bg.Go("memory_update", func(ctx context.Context) error {
		count, err := e.store.UserMessageCount(ctx, convID)
		if err != nil {
			return err
		}
		if !e.archivist.Due(count) {
			return nil
		}
		user, err := e.store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		_, err = e.archivist.Update(ctx, userID, user.MemorySummary,
			memory.TagSMS+" "+body, memory.TagSMS+" "+reply)
		return err
	})

	if mentioned := promo.Mentioned(reply, offered); len(mentioned) > 0 {
		e.bg.Go("promo_confirm", func(ctx context.Context) error {
			for _, item := range mentioned {
				if err := e.capper.ConfirmPitch(ctx, userID, item.ID); err != nil {
					return err
				}
				log.Printf("promo pitch confirmed: user=%s item=%s", userID, item.ID)
			}
			return nil
		})
	}
}

func (e *Engine) runIntent(ctx context.Context, userID, body string) error {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	recent, err := e.store.RecentMessages(ctx, userID, 3)
	if err != nil {
		return err
	}
	var hist []string
	for _, m := range recent {
		hist = append(hist, roleFor(m)+": "+m.Text)
	}
	calls, err := e.calls.List(ctx, userID)
	if err != nil {
		return err
	}

	res, err := e.extractor.Extract(ctx, intent.Request{
		UserText:     body,
		CurrentName:  user.FullName,
		CurrentEmail: user.Email,
		History:      strings.Join(hist, "\n"),
		Transcripts:  calls,
		Now:          time.Now(),
	})
	if err != nil {
		return err
	}

	if res.FullName != "" || res.Email != "" {
		if err := e.store.UpdateUserProfile(ctx, userID, res.FullName, res.Email); err != nil {
			return err
		}
	}

	if res.TranscriptIDToSend == "" {
		return nil
	}
	email := res.Email
	if email == "" {
		email = user.Email
	}
	if !strings.Contains(email, "@") {
		log.Printf("transcript %s requested but no usable email for user %s", res.TranscriptIDToSend, userID)
		return nil
	}
	name := res.FullName
	if name == "" {
		name = user.FullName
	}
	if name == "" {
		name = "User"
	}
	desc := res.TranscriptDescription
	if desc == "" {
		desc = "from our recent conversation"
	}
	return e.notifier.SendTranscript(ctx, notify.Delivery{
		Email:        email,
		Name:         name,
		TranscriptID: res.TranscriptIDToSend,
		Description:  desc,
	})
}

// PersonalizeVars builds the dynamic variables handed to the voice agent at
// call start. Failures yield empty variables; the call proceeds regardless.
func (e *Engine) PersonalizeVars(ctx context.Context, rawFrom string) map[string]string {
	empty := map[string]string{
		"memory_summary": "", "caller_phone": "", "channel": scopeCall,
		"recent_history": "", "first_greeting": "",
	}
	phone := identity.Normalize(rawFrom)
	if phone == "" {
		return empty
	}

	userID, err := e.resolver.Resolve(ctx, rawFrom)
	if err != nil {
		log.Printf("personalize: resolve failed: %v", err)
		return empty
	}
	if _, err := e.sessions.Attach(ctx, userID, scopeCall); err != nil {
		log.Printf("personalize: attach failed: %v", err)
		return empty
	}
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		log.Printf("personalize: user read failed: %v", err)
		return empty
	}
	history, err := e.store.RecentMessages(ctx, userID, e.historyLimit)
	if err != nil {
		log.Printf("personalize: history read failed: %v", err)
		return empty
	}

	first := "there"
	if user.FullName != "" {
		first = strings.Fields(user.FullName)[0]
	}
	greeting := "Hi! How can I help you today?"
	if user.MemorySummary != "" {
		greeting = fmt.Sprintf("Welcome back, %s. Shall we continue where we left off?", first)
	}

	mem := user.MemorySummary
	if mem == "" {
		mem = "No previous memory."
	}
	name := user.FullName
	if name == "" {
		name = "Unknown"
	}
	email := user.Email
	if email == "" {
		email = "Unknown"
	}

	return map[string]string{
		"memory_summary": mem,
		"caller_phone":   phone,
		"channel":        scopeCall,
		"recent_history": formatHistoryForCall(history),
		"first_greeting": greeting,
		"user_name":      name,
		"user_email":     email,
	}
}

// HandlePostCall ingests one voice-call completion event.
func (e *Engine) HandlePostCall(ctx context.Context, env *callEnvelope) error {
	rawPhone := env.callerAddress()
	phone := identity.Normalize(rawPhone)
	transcriptText := env.transcriptText()
	if phone == "" || transcriptText == "" {
		return errMalformedPayload
	}

	userID, err := e.resolver.Resolve(ctx, rawPhone)
	if err != nil {
		e.logFailure(ctx, phone, "", "", scopeCall, "resolve_user", err, "")
		return err
	}
	e.ensureIntro(userID, phone)

	if callID := env.externalCallID(); callID != "" {
		if err := e.calls.Add(ctx, userID, callID, env.upstreamSummary(), transcriptText, time.Now()); err != nil {
			e.logFailure(ctx, phone, userID, "", scopeCall, "index_transcript", err, callID)
			return err
		}
	}

	// Voice-call completion always archives, regardless of cadence.
	e.bg.Go("post_call_memory", func(ctx context.Context) error {
		user, err := e.store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		_, err = e.archivist.Update(ctx, userID, user.MemorySummary,
			"(VOICE CALL INITIATED)", "(VOICE CALL TRANSCRIPT SUMMARY)\n"+memory.TagVoice+" "+transcriptText)
		return err
	})

	if e.notifier.Configured() {
		e.bg.Go("post_call_fetch_ping", func(ctx context.Context) error {
			return e.notifier.PingFetch(ctx)
		})
	}

	e.scheduleFollowupSMS(userID, phone)
	return nil
}

// scheduleFollowupSMS offers the transcript by text a little while after the
// call ends, and records the outbound message in the sms-scope conversation.
func (e *Engine) scheduleFollowupSMS(userID, phone string) {
	if e.messenger == nil {
		return
	}
	e.bg.After(e.followupDelay, "post_call_followup_sms", func(ctx context.Context) error {
		user, err := e.store.GetUser(ctx, userID)
		if err != nil {
			return err
		}

		var text string
		if user.Email != "" && user.FullName != "" {
			text = fmt.Sprintf("Hi %s! Would you like me to email you the transcript from our recent call? Just reply 'Yes'.",
				strings.Fields(user.FullName)[0])
		} else {
			text = "Hi! Thanks for the chat. If you'd like me to email you a copy of our call transcript, just reply with your full name and email address!"
		}

		to := phone
		if !strings.HasPrefix(to, "+") {
			to = "+" + to
		}
		if err := e.messenger.SendSMS(ctx, to, text); err != nil {
			return err
		}

		convID, err := e.sessions.Attach(ctx, userID, scopeSMS)
		if err != nil {
			return err
		}
		_, err = e.store.InsertMessage(ctx, store.Message{
			ConversationID: convID,
			Channel:        scopeSMS,
			Direction:      store.DirectionAgent,
			Text:           text,
			Provider:       "twilio",
		})
		return err
	})
}

// ensureIntro sends the one-time introduction message on first contact. The
// sent flag moves only after the provider accepts the message.
func (e *Engine) ensureIntro(userID, rawAddress string) {
	if e.messenger == nil || e.introMessage == "" {
		return
	}
	e.bg.Go("intro_message", func(ctx context.Context) error {
		user, err := e.store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user.IntroSent {
			return nil
		}
		if err := e.messenger.SendSMS(ctx, rawAddress, e.introMessage); err != nil {
			return err
		}
		return e.store.MarkIntroSent(ctx, userID)
	})
}

func (e *Engine) logFailure(ctx context.Context, phone, userID, convID, channel, stage string, err error, details string) {
	log.Printf("ERROR %s: stage=%s: %v", channel, stage, err)
	e.store.LogError(ctx, store.ErrorEntry{
		Phone:          phone,
		UserID:         userID,
		ConversationID: convID,
		Channel:        channel,
		Stage:          stage,
		Message:        err.Error(),
		Details:        details,
	})
}

func roleFor(m store.Message) string {
	if m.Direction == store.DirectionAgent {
		return "assistant"
	}
	return "user"
}

func channelTag(channel string) string {
	if strings.EqualFold(channel, scopeCall) {
		return "(CALL)"
	}
	return "(SMS)"
}

func profileContext(u *store.User) string {
	name := u.FullName
	if name == "" {
		name = "Unknown"
	}
	email := u.Email
	if email == "" {
		email = "Unknown"
	}
	return fmt.Sprintf("User Profile Data - Name: %s, Email: %s.\n"+
		"CRITICAL INSTRUCTION: If the user says 'Yes' to receiving a transcript, OR asks for a transcript, but their Email is 'Unknown', you MUST reply by telling them you need their email address to send it. Do not confirm sending until an email is provided.",
		name, email)
}

func promoContext(items []store.PromoItem) string {
	var b strings.Builder
	b.WriteString("Upcoming events you may mention when genuinely relevant (never more than one per reply):\n")
	for _, item := range items {
		fmt.Fprintf(&b, "- %s (%s)", item.Title, item.StartsAt.Format("Jan 2, 2006"))
		if item.Pitch != "" {
			b.WriteString(": " + item.Pitch)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHistoryForCall(msgs []store.Message) string {
	if len(msgs) == 0 {
		return "No recent history."
	}
	var lines []string
	for _, m := range msgs {
		who := "User"
		if m.Direction == store.DirectionAgent {
			who = "Agent"
		}
		tag := "SMS"
		if strings.EqualFold(m.Channel, scopeCall) {
			tag = "CALL"
		}
		lines = append(lines, fmt.Sprintf("%s (via %s): %s", who, tag, strings.TrimSpace(m.Text)))
	}
	return strings.Join(lines, "\n")
}
