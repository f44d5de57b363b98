// Package chain answers questions restricted to the content of a knowledge
// index, keeping follow-up questions coherent with earlier turns.
package chain

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/prompts"
	"go.uber.org/zap"

	"ragchat/internal/domain"
)

const DefaultTopK = 4

const condenseTemplate = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
{{.chat_history}}
Follow Up Input: {{.question}}
Standalone question:`

const answerTemplate = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

{{.context}}

Question: {{.question}}
Helpful Answer:`

// Retriever returns the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
}

// Answer is the chain's reply to one question.
type Answer struct {
	Text string
	// Question is the standalone question used for retrieval.
	Question string
	Sources  []domain.Chunk
}

// Options tune a Chain. Zero values select the defaults.
type Options struct {
	TopK int
	// DisableCondense skips rewriting follow-up questions.
	DisableCondense bool
	Logger          *zap.Logger
}

// Chain binds one retriever to one model.
type Chain struct {
	model     domain.ChatModel
	retriever Retriever
	topK      int
	condense  bool
	condenseP prompts.PromptTemplate
	answerP   prompts.PromptTemplate
	log       *zap.Logger
}

func New(model domain.ChatModel, retriever Retriever, opts Options) *Chain {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Chain{
		model:     model,
		retriever: retriever,
		topK:      opts.TopK,
		condense:  !opts.DisableCondense,
		condenseP: prompts.NewPromptTemplate(condenseTemplate, []string{"chat_history", "question"}),
		answerP:   prompts.NewPromptTemplate(answerTemplate, []string{"context", "question"}),
		log:       opts.Logger,
	}
}

// Answer retrieves fresh chunks for question and asks the model to answer
// from them alone. priorTurns are only used to rewrite the question.
//
// Model failures match domain.ErrGeneration; retrieval failures keep the
// retriever's error (domain.ErrEmbedding for the knowledge index).
func (c *Chain) Answer(ctx context.Context, question string, priorTurns []domain.Turn) (Answer, error) {
	standalone, err := c.standalone(ctx, question, priorTurns)
	if err != nil {
		return Answer{}, err
	}

	results, err := c.retriever.Retrieve(ctx, standalone, c.topK)
	if err != nil {
		return Answer{}, err
	}
	sources := make([]domain.Chunk, len(results))
	texts := make([]string, len(results))
	for i, r := range results {
		sources[i] = r.Chunk
		texts[i] = r.Chunk.Text
	}

	prompt, err := c.answerP.Format(map[string]any{
		"context":  strings.Join(texts, "\n\n"),
		"question": standalone,
	})
	if err != nil {
		return Answer{}, domain.GenerationFailure(err)
	}
	text, err := c.model.Generate(ctx, []domain.ChatMessage{domain.UserMessage(prompt)})
	if err != nil {
		return Answer{}, domain.GenerationFailure(err)
	}
	c.log.Debug("answered from index", zap.Int("sources", len(sources)), zap.Bool("condensed", standalone != question))
	return Answer{Text: text, Question: standalone, Sources: sources}, nil
}

func (c *Chain) standalone(ctx context.Context, question string, prior []domain.Turn) (string, error) {
	if !c.condense || len(prior) == 0 {
		return question, nil
	}
	prompt, err := c.condenseP.Format(map[string]any{
		"chat_history": FormatHistory(prior),
		"question":     question,
	})
	if err != nil {
		return "", domain.GenerationFailure(err)
	}
	rewritten, err := c.model.Generate(ctx, []domain.ChatMessage{domain.UserMessage(prompt)})
	if err != nil {
		return "", domain.GenerationFailure(err)
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return question, nil
	}
	return rewritten, nil
}

// FormatHistory renders turns the way the condense prompt expects them.
func FormatHistory(turns []domain.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString("\nHuman: ")
		b.WriteString(t.Question)
		b.WriteString("\nAssistant: ")
		b.WriteString(t.Answer)
	}
	return b.String()
}
