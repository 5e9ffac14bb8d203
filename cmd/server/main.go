package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"concierge/internal/config"
	"concierge/internal/identity"
	"concierge/internal/ingest"
	"concierge/internal/intent"
	"concierge/internal/kb"
	"concierge/internal/llm"
	"concierge/internal/memory"
	"concierge/internal/messaging"
	"concierge/internal/notify"
	"concierge/internal/promo"
	"concierge/internal/server"
	"concierge/internal/session"
	"concierge/internal/store"
	"concierge/internal/tasks"
	"concierge/internal/transcripts"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	st, err := store.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	factory := &llm.Factory{
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
	}
	replyModel := cfg.ReplyModel
	auxModel := cfg.AuxModel
	if cfg.LLMProvider == config.ProviderAnthropic {
		replyModel = cfg.AnthropicModel
		auxModel = cfg.AnthropicModel
	}
	replyGen, err := factory.CreateClient(string(cfg.LLMProvider), replyModel)
	if err != nil {
		log.Fatalf("failed to create reply client: %v", err)
	}
	auxGen, err := factory.CreateClient(string(cfg.LLMProvider), auxModel)
	if err != nil {
		log.Fatalf("failed to create aux client: %v", err)
	}

	var knowledge server.KnowledgeBase
	if cfg.OpenAIAPIKey != "" {
		embedder := kb.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
		index, err := kb.Open(cfg.KBPath, embedder)
		if err != nil {
			log.Printf("failed to open knowledge base, continuing without it: %v", err)
		} else {
			knowledge = index
		}
	}

	snapshot := promo.NewSnapshot(st)
	if err := snapshot.Start(cfg.PromoRefreshEvery); err != nil {
		log.Fatalf("failed to start promo snapshot: %v", err)
	}
	defer snapshot.Stop()

	var messenger messaging.Sender
	twilio := messaging.NewTwilio(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber)
	if twilio.Configured() {
		messenger = twilio
	} else {
		log.Printf("messaging provider not configured, outbound SMS disabled")
	}

	coordinator := tasks.NewCoordinator()
	defer coordinator.Wait()

	engine := server.NewEngine(server.EngineDeps{
		Store:     st,
		Resolver:  identity.NewResolver(st),
		Sessions:  session.NewManager(st, cfg.SessionWindow),
		Gate:      ingest.NewGate(st),
		ReplyGen:  replyGen,
		Archivist: memory.NewArchivist(auxGen, st, cfg.MemoryEveryN),
		Calls:     transcripts.NewIndex(st),
		Extractor: intent.NewExtractor(auxGen),
		Capper:    promo.NewCapper(st, cfg.PromoPitchCap),
		Notifier:  notify.NewWebhook(cfg.NotifyWebhookURL),
		Tasks:     coordinator,

		KB:        knowledge,
		Promos:    snapshot,
		Messenger: messenger,

		ReplyProvider: string(cfg.LLMProvider),
		SystemPrompt:  readSystemPrompt(cfg.SystemPromptPath),
		HistoryLimit:  cfg.HistoryLimit,
		IntroMessage:  cfg.IntroMessage,
		FollowupDelay: cfg.FollowupDelay,
	})

	srv := server.New(engine)
	if err := srv.ListenAndServe(cfg.ListenAddr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func readSystemPrompt(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("system prompt file not found or unreadable at %s: %v", path, err)
		return ""
	}
	return string(data)
}
