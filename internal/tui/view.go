package tui

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/domain"
	"ragchat/internal/embedding/tfidf"
	"ragchat/internal/session"
)

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle      = lipgloss.NewStyle().Bold(true)
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	noticeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	highlightStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sentenceRe      = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

	modeStyles = map[session.Mode]lipgloss.Style{
		session.ModeLocked:        lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		session.ModeFullKnowledge: lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		session.ModeRestricted:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	}
)

// maxSourceRunes caps each source excerpt in the transcript.
const maxSourceRunes = 240

// View renders the key prompt or the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("RAG Chat") + "  " + modeStyles[m.mode].Render("["+m.mode.String()+"]")
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	errLine := ""
	if m.errLine != "" {
		errLine = errorStyle.Render(m.errLine)
	}

	if m.screen == keyScreen {
		return header + "\n\n" + inputStyle.Render(m.keyInput.View()) + "\n" + status + "\n" + errLine
	}
	body := transcriptStyle.Render(m.viewport.View())
	return header + "\n" + body + "\n" + inputStyle.Render(m.input.View()) + "\n" + status + "\n" + errLine
}

func (m Model) renderTranscript() string {
	var b strings.Builder
	question := ""
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n")
		}
		switch {
		case e.notice:
			b.WriteString(noticeStyle.Render(e.text))
			b.WriteString("\n")
		case e.role == domain.RoleUser:
			question = e.text
			b.WriteString(userStyle.Render("You: "))
			b.WriteString(e.text)
			b.WriteString("\n")
		default:
			b.WriteString(m.renderMarkdown(e.text))
			if len(e.sources) > 0 {
				b.WriteString(renderSources(e.sources, question))
			}
		}
	}
	return b.String()
}

func (m Model) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text + "\n"
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func renderSources(sources []domain.Chunk, question string) string {
	var b strings.Builder
	b.WriteString(sourceStyle.Render("Sources:"))
	b.WriteString("\n")
	for i, src := range sources {
		name := src.DocumentID
		if name == "" {
			name = "document"
		}
		fmt.Fprintf(&b, "%s %s\n", sourceStyle.Render(fmt.Sprintf("[%d] %s:", i+1, name)), highlightBestSentence(excerpt(src.Text), question))
	}
	return b.String()
}

func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxSourceRunes {
		return text
	}
	return string(runes[:maxSourceRunes]) + "…"
}

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx && bestScore > 0 {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := tfidf.Tokenize(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if !tfidf.IsStopword(t) {
			m[t] = struct{}{}
		}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range tfidf.Tokenize(sentence) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
