// import-transcripts migrates legacy transcript data exported from the
// previous deployment. The input is a JSON object mapping phone numbers to
// transcript arrays in whatever shape the old system stored them: bare call
// id strings, or objects with drifting timestamp field names. Entries are
// normalized on import; existing (user, call id) pairs are left untouched.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"concierge/internal/config"
	"concierge/internal/identity"
	"concierge/internal/store"
	"concierge/internal/transcripts"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	src := flag.String("src", "transcripts.json", "legacy transcript export to import")
	flag.Parse()

	cfg := config.New()
	st, err := store.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	raw, err := os.ReadFile(*src)
	if err != nil {
		log.Fatalf("failed to read export: %v", err)
	}
	var byPhone map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byPhone); err != nil {
		log.Fatalf("export is not a phone->transcripts object: %v", err)
	}

	ctx := context.Background()
	resolver := identity.NewResolver(st)
	index := transcripts.NewIndex(st)

	total := 0
	for phone, entries := range byPhone {
		userID, err := resolver.Resolve(ctx, phone)
		if err != nil {
			log.Fatalf("failed to resolve %s: %v", phone, err)
		}
		n, err := index.ImportLegacy(ctx, userID, entries)
		if err != nil {
			log.Fatalf("failed to import transcripts for %s: %v", phone, err)
		}
		total += n
		log.Printf("imported %d transcript records for %s", n, phone)
	}
	log.Printf("done: %d records across %d users", total, len(byPhone))
}
