// Package session drives one user's conversation: key validation, document
// ingestion and routing each message through the right answering path.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragchat/internal/chain"
	"ragchat/internal/domain"
	"ragchat/internal/ingest"
	"ragchat/internal/llm"
	"ragchat/internal/service"
	"ragchat/internal/storage"
)

// Mode is the state of a session.
type Mode int

const (
	// ModeLocked means no valid API key has been submitted yet.
	ModeLocked Mode = iota
	// ModeFullKnowledge answers with the model's own knowledge and the chat history.
	ModeFullKnowledge
	// ModeRestricted answers only from the ingested documents.
	ModeRestricted
)

func (m Mode) String() string {
	switch m {
	case ModeLocked:
		return "locked"
	case ModeFullKnowledge:
		return "full knowledge"
	case ModeRestricted:
		return "restricted to documents"
	default:
		return "unknown"
	}
}

// Backend creates the key- and session-bound collaborators.
type Backend interface {
	ChatModel(apiKey string) (domain.ChatModel, error)
	Embedder(apiKey string) (domain.Embedder, error)
	// VectorStore returns an empty store named after the given index.
	VectorStore(name string) (domain.VectorStore, error)
}

// Deps are the collaborators of a session. Summarizer and Logger are optional.
type Deps struct {
	Backend          Backend
	Extractor        ingest.TextExtractor
	Chunker          domain.Chunker
	Storage          *storage.Manager
	Summarizer       domain.Summarizer
	SummarySentences int
	SystemPrompt     string
	Chain            chain.Options
	Logger           *zap.Logger
}

// IngestReport describes a successfully indexed document set.
type IngestReport struct {
	Documents []string
	Chunks    int
	Summary   string
}

// Reply is the answer to one message.
type Reply struct {
	Text    string
	Sources []domain.Chunk
	Mode    Mode
}

// Session is not safe for concurrent use.
type Session struct {
	id   string
	deps Deps
	log  *zap.Logger

	mode   Mode
	apiKey string
	model  domain.ChatModel

	index      *service.KnowledgeIndex
	chain      *chain.Chain
	documents  []string
	generation int

	turns []domain.Turn
}

func New(deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.SummarySentences <= 0 {
		deps.SummarySentences = 3
	}
	id := uuid.NewString()
	return &Session{
		id:   id,
		deps: deps,
		log:  deps.Logger.With(zap.String("session_id", id)),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Mode() Mode { return s.mode }

// Documents lists the names of the indexed documents.
func (s *Session) Documents() []string { return slices.Clone(s.documents) }

// SubmitKey validates key with a single probe call. A key that is already
// accepted is not probed again. On failure the previous state is kept and
// the error is a *domain.CredentialError.
func (s *Session) SubmitKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return &domain.CredentialError{Err: errors.New("empty API key")}
	}
	if s.mode != ModeLocked && key == s.apiKey {
		return nil
	}
	model, err := s.deps.Backend.ChatModel(key)
	if err != nil {
		return &domain.CredentialError{Err: err}
	}
	if err := llm.Probe(ctx, model); err != nil {
		unauthorized := errors.Is(err, domain.ErrUnauthorized)
		s.log.Warn("api key rejected", zap.Bool("unauthorized", unauthorized), zap.Error(err))
		return &domain.CredentialError{Unauthorized: unauthorized, Err: err}
	}
	s.apiKey = key
	s.model = model
	if s.index != nil {
		s.chain = chain.New(model, s.index, s.chainOptions())
	}
	if s.mode == ModeLocked {
		s.mode = ModeFullKnowledge
	}
	s.log.Info("api key accepted", zap.Stringer("mode", s.mode))
	return nil
}

// Ingest indexes docs and switches the session to restricted mode with a
// fresh history. Any failure leaves the session as it was.
func (s *Session) Ingest(ctx context.Context, docs []domain.UploadedDocument) (IngestReport, error) {
	if s.mode == ModeLocked {
		return IngestReport{}, domain.ErrLocked
	}
	if len(docs) == 0 {
		return IngestReport{}, domain.ErrNoDocuments
	}

	corpus, err := ingest.ProcessAll(s.deps.Extractor, docs)
	if err != nil {
		return IngestReport{}, err
	}
	if corpus.Empty() {
		return IngestReport{}, domain.ErrNoDocuments
	}
	chunks := s.label(corpus)

	embedder, err := s.deps.Backend.Embedder(s.apiKey)
	if err != nil {
		return IngestReport{}, domain.EmbeddingFailure(err)
	}
	name := s.id + "-" + strconv.Itoa(s.generation+1)
	store, err := s.deps.Backend.VectorStore(name)
	if err != nil {
		return IngestReport{}, fmt.Errorf("open vector store: %w", err)
	}
	index, err := service.Build(ctx, embedder, store, chunks, s.log)
	if err != nil {
		return IngestReport{}, err
	}

	for _, doc := range docs {
		if _, err := s.deps.Storage.Save(doc); err != nil {
			if cerr := index.Close(ctx); cerr != nil {
				s.log.Warn("dropping unused index failed", zap.Error(cerr))
			}
			return IngestReport{}, fmt.Errorf("store %s: %w", doc.Name, err)
		}
	}

	if s.index != nil {
		if err := s.index.Close(ctx); err != nil {
			s.log.Warn("closing previous index failed", zap.Error(err))
		}
	}
	s.generation++
	s.index = index
	s.chain = chain.New(s.model, index, s.chainOptions())
	s.documents = corpus.Names()
	s.turns = nil
	s.mode = ModeRestricted

	report := IngestReport{Documents: corpus.Names(), Chunks: index.Len(), Summary: s.summarize(corpus.Text)}
	s.log.Info("documents ingested", zap.Strings("documents", report.Documents), zap.Int("chunks", report.Chunks))
	return report, nil
}

func (s *Session) chainOptions() chain.Options {
	opts := s.deps.Chain
	opts.Logger = s.log
	return opts
}

// label names every chunk after the document its first rune belongs to.
func (s *Session) label(corpus ingest.Corpus) []domain.Chunk {
	var chunks []domain.Chunk
	for ch := range s.deps.Chunker.Split(corpus.Text) {
		ch.DocumentID = corpus.SourceAt(ch.Offset)
		ch.ChunkID = ch.DocumentID + ":" + strconv.Itoa(ch.Index)
		chunks = append(chunks, ch)
	}
	return chunks
}

func (s *Session) summarize(text string) string {
	if s.deps.Summarizer == nil {
		return ""
	}
	summary, err := s.deps.Summarizer.Summarize(text, s.deps.SummarySentences)
	if err != nil {
		s.log.Warn("summary failed", zap.Error(err))
		return ""
	}
	return summary
}

// Send answers text in the current mode. The exchange is recorded only when
// an answer was produced.
func (s *Session) Send(ctx context.Context, text string) (Reply, error) {
	var reply Reply
	switch s.mode {
	case ModeLocked:
		return Reply{}, domain.ErrLocked
	case ModeFullKnowledge:
		msgs := make([]domain.ChatMessage, 0, 2*len(s.turns)+2)
		if s.deps.SystemPrompt != "" {
			msgs = append(msgs, domain.ChatMessage{Role: domain.RoleSystem, Content: s.deps.SystemPrompt})
		}
		msgs = append(msgs, domain.Messages(s.turns)...)
		msgs = append(msgs, domain.UserMessage(text))
		answer, err := s.model.Generate(ctx, msgs)
		if err != nil {
			return Reply{}, domain.GenerationFailure(err)
		}
		reply = Reply{Text: answer, Mode: ModeFullKnowledge}
	case ModeRestricted:
		ans, err := s.chain.Answer(ctx, text, s.turns)
		if err != nil {
			return Reply{}, err
		}
		reply = Reply{Text: ans.Text, Sources: ans.Sources, Mode: ModeRestricted}
	}
	s.turns = append(s.turns, domain.Turn{Question: text, Answer: reply.Text})
	s.log.Debug("message answered", zap.Stringer("mode", reply.Mode), zap.Int("turns", len(s.turns)))
	return reply, nil
}

// ClearContext forgets the documents and the history and returns to full
// knowledge mode. A locked session stays locked.
func (s *Session) ClearContext(ctx context.Context) error {
	if s.mode == ModeLocked {
		return domain.ErrLocked
	}
	var errs []error
	if err := s.deps.Storage.Clear(); err != nil {
		errs = append(errs, fmt.Errorf("clear storage: %w", err))
	}
	if s.index != nil {
		if err := s.index.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close index: %w", err))
		}
	}
	s.index = nil
	s.chain = nil
	s.documents = nil
	s.turns = nil
	s.mode = ModeFullKnowledge
	s.log.Info("document context cleared")
	return errors.Join(errs...)
}

// ResetHistory drops the chat history and keeps the documents.
func (s *Session) ResetHistory() {
	s.turns = nil
}

// History returns the conversation as alternating user and AI messages.
func (s *Session) History() []domain.ChatMessage { return domain.Messages(s.turns) }

// Turns returns a copy of the completed exchanges.
func (s *Session) Turns() []domain.Turn { return slices.Clone(s.turns) }
