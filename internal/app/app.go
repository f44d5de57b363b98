// Package app assembles a session from the configuration.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"ragchat/internal/chain"
	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/embedding/cache"
	"ragchat/internal/embedding/openai"
	"ragchat/internal/embedding/tfidf"
	"ragchat/internal/ingest"
	"ragchat/internal/llm"
	"ragchat/internal/session"
	"ragchat/internal/storage"
	"ragchat/internal/summarizer"
	"ragchat/internal/vectorstore/memory"
	"ragchat/internal/vectorstore/qdrant"
)

// Backend builds the configured model, embedder and vector store.
type Backend struct {
	cfg *config.AppConfig
	log *zap.Logger
}

func NewBackend(cfg *config.AppConfig, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{cfg: cfg, log: log}
}

func (b *Backend) ChatModel(apiKey string) (domain.ChatModel, error) {
	return llm.NewClient(apiKey, llm.Config{
		BaseURL:     b.cfg.LLM.BaseURL,
		Model:       b.cfg.LLM.Model,
		Timeout:     b.cfg.LLM.Timeout(),
		MaxRetries:  b.cfg.LLM.MaxRetries,
		Temperature: b.cfg.LLM.Temperature,
	}, b.log), nil
}

// Embedder returns a fresh, cached embedder. The hosted embedder uses its
// own key variable when one is configured and set, the session key otherwise.
func (b *Backend) Embedder(apiKey string) (domain.Embedder, error) {
	var emb domain.Embedder
	switch b.cfg.Embedder.Type {
	case "tfidf", "":
		emb = tfidf.NewEmbedder()
	case "openai":
		ocfg := b.cfg.Embedder.OpenAI
		if ocfg == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		key := apiKey
		if ocfg.APIKeyEnv != "" {
			if v := os.Getenv(ocfg.APIKeyEnv); v != "" {
				key = v
			}
		}
		baseURL := ocfg.BaseURL
		if baseURL == "" {
			baseURL = b.cfg.LLM.BaseURL
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    baseURL,
			APIKey:     key,
			Model:      ocfg.Model,
			Timeout:    time.Duration(ocfg.TimeoutSecs) * time.Second,
			BatchSize:  ocfg.BatchSize,
			MaxRetries: b.cfg.LLM.MaxRetries,
		}, b.log)
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", b.cfg.Embedder.Type)
	}
	return cache.New(emb, time.Duration(b.cfg.Embedder.CacheTTLSecs)*time.Second), nil
}

func (b *Backend) VectorStore(name string) (domain.VectorStore, error) {
	switch b.cfg.VectorStore.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		q := b.cfg.VectorStore.Qdrant
		if q == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}, name), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", b.cfg.VectorStore.Type)
	}
}

// NewSession wires a locked session and prepares its scratch directory.
func NewSession(cfg *config.AppConfig, log *zap.Logger) (*session.Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ext, err := ingest.NewPDFExtractor(os.Getenv(cfg.PDF.LicenseKeyEnv), log)
	if err != nil {
		return nil, err
	}

	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case "frequency", "":
		sum = summarizer.NewFrequencySummarizer()
	case "none":
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	// Surface an unknown store or embedder now rather than at first upload.
	backend := NewBackend(cfg, log)
	if _, err := backend.VectorStore(""); err != nil {
		return nil, err
	}
	if t := cfg.Embedder.Type; t != "" && t != "tfidf" && t != "openai" {
		return nil, fmt.Errorf("unknown embedder: %s", t)
	}

	mgr := storage.NewManager(cfg.Storage.TempDir)
	if err := mgr.Ensure(); err != nil {
		return nil, fmt.Errorf("prepare %s: %w", mgr.Dir(), err)
	}

	return session.New(session.Deps{
		Backend:          backend,
		Extractor:        ext,
		Chunker:          chunker.NewRecursiveChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap, cfg.Chunker.Separators...),
		Storage:          mgr,
		Summarizer:       sum,
		SummarySentences: cfg.Summarizer.MaxSentences,
		SystemPrompt:     cfg.LLM.SystemPrompt,
		Chain: chain.Options{
			TopK:            cfg.Retrieval.TopK,
			DisableCondense: !cfg.Retrieval.Condense,
		},
		Logger: log,
	}), nil
}

// ReadDocuments loads the files at paths as uploads named after their base name.
func ReadDocuments(paths []string) ([]domain.UploadedDocument, error) {
	docs := make([]domain.UploadedDocument, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		docs = append(docs, domain.UploadedDocument{Name: filepath.Base(p), Data: data})
	}
	return docs, nil
}
