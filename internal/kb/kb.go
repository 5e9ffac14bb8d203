// Package kb provides retrieval over the imported knowledge corpus: text is
// embedded with the configured embedding model and matched against a local
// chromem vector store.
package kb

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/dgraph-io/ristretto"
	chromem "github.com/philippgille/chromem-go"
	"github.com/sashabaranov/go-openai"
)

const (
	collectionName = "kb_chunks"
	matchThreshold = 0.3
	matchCount     = 3
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder embeds text through the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIEmbedder(apiKey, baseURL, model string) *OpenAIEmbedder {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(config),
		model:  openai.EmbeddingModel(model),
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings response has no data")
	}
	return resp.Data[0].Embedding, nil
}

// Index is the queryable knowledge base. Query embeddings are cached so a
// repeated question does not re-embed.
type Index struct {
	col   *chromem.Collection
	embed Embedder
	cache *ristretto.Cache
}

// Open opens (or creates) the persistent vector store at path.
func Open(path string, embed Embedder) (*Index, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 22,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	return &Index{col: col, embed: embed, cache: cache}, nil
}

// AddChunk stores one embedded chunk of a document.
func (ix *Index) AddChunk(ctx context.Context, docKey string, seq int, content string) error {
	embedding, err := ix.embed.Embed(ctx, content)
	if err != nil {
		return err
	}
	return ix.col.AddDocument(ctx, chromem.Document{
		ID:        fmt.Sprintf("%s#%d", docKey, seq),
		Content:   content,
		Embedding: embedding,
		Metadata:  map[string]string{"doc_key": docKey},
	})
}

// Search returns a joined context block of the best-matching chunks, or the
// empty string when nothing clears the threshold. Failures degrade to an
// empty context so reply generation proceeds without the knowledge base.
func (ix *Index) Search(ctx context.Context, query string) string {
	embedding, err := ix.queryEmbedding(ctx, query)
	if err != nil {
		log.Printf("kb: embedding failed: %v", err)
		return ""
	}

	n := matchCount
	if count := ix.col.Count(); count < n {
		n = count
	}
	if n == 0 {
		return ""
	}

	results, err := ix.col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		log.Printf("kb: vector search failed: %v", err)
		return ""
	}

	var parts []string
	for _, res := range results {
		if res.Similarity < matchThreshold {
			continue
		}
		parts = append(parts, fmt.Sprintf("[Source: %s]\n%s", res.Metadata["doc_key"], res.Content))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func (ix *Index) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	if v, ok := ix.cache.Get(query); ok {
		if emb, ok := v.([]float32); ok {
			return emb, nil
		}
	}
	emb, err := ix.embed.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	ix.cache.Set(query, emb, int64(len(emb)*4))
	return emb, nil
}
