// kb-import loads the markdown knowledge corpus into the vector store: each
// document is chunked on natural boundaries, embedded, and saved under its
// file name as doc key.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"concierge/internal/config"
	"concierge/internal/kb"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	srcDir := flag.String("src", "kb", "directory of .md documents to import")
	flag.Parse()

	cfg := config.New()
	if cfg.OpenAIAPIKey == "" {
		log.Fatal("OPENAI_API_KEY is required for embedding")
	}

	embedder := kb.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
	index, err := kb.Open(cfg.KBPath, embedder)
	if err != nil {
		log.Fatalf("failed to open knowledge base: %v", err)
	}

	entries, err := os.ReadDir(*srcDir)
	if err != nil {
		log.Fatalf("failed to read source dir: %v", err)
	}

	ctx := context.Background()
	docs := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".md") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(*srcDir, entry.Name()))
		if err != nil {
			log.Fatalf("failed to read %s: %v", entry.Name(), err)
		}

		chunks := kb.ChunkText(string(raw), 0)
		for i, chunk := range chunks {
			if err := index.AddChunk(ctx, entry.Name(), i, chunk); err != nil {
				log.Fatalf("failed to import %s chunk %d: %v", entry.Name(), i, err)
			}
		}
		docs++
		log.Printf("imported %s (%d chunks)", entry.Name(), len(chunks))
	}

	if docs == 0 {
		log.Fatalf("no .md files found in %s", *srcDir)
	}
	log.Printf("done: %d documents imported", docs)
}
