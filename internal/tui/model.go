package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"ragchat/internal/domain"
	"ragchat/internal/session"
)

// SessionPort is the TUI-facing subset of a session.
type SessionPort interface {
	SubmitKey(ctx context.Context, key string) error
	Ingest(ctx context.Context, docs []domain.UploadedDocument) (session.IngestReport, error)
	Send(ctx context.Context, text string) (session.Reply, error)
	ClearContext(ctx context.Context) error
	ResetHistory()
	Mode() session.Mode
}

// Options configure the TUI. Zero values are usable.
type Options struct {
	// EnvKey is submitted on start when set.
	EnvKey string
	// Docs are uploaded once the key has been accepted.
	Docs []string
	// ReadDocuments loads upload paths.
	ReadDocuments func(paths []string) ([]domain.UploadedDocument, error)
	// Style is a glamour standard style name; empty selects the terminal's.
	Style string
	// Timeout bounds a single request.
	Timeout time.Duration
}

// inflight tracks the session calls still running in command goroutines.
type inflight struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func newInflight() *inflight {
	ctx, cancel := context.WithCancel(context.Background())
	return &inflight{ctx: ctx, cancel: cancel}
}

// begin registers a call. It reports false once shutdown has started.
func (f *inflight) begin() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.wg.Add(1)
	return true
}

func (f *inflight) end() { f.wg.Done() }

func (f *inflight) shutdown() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.cancel()
	f.wg.Wait()
}

type screen int

const (
	keyScreen screen = iota
	chatScreen
)

type entry struct {
	role    domain.Role
	text    string
	sources []domain.Chunk
	notice  bool
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	port SessionPort
	opts Options
	work *inflight

	screen   screen
	keyInput textinput.Model
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	entries  []entry
	mode     session.Mode
	status   string
	errLine  string
	busy     bool
	ready    bool
	width    int
	pendDocs []string
}

type keyResultMsg struct {
	err  error
	mode session.Mode
}

type replyMsg struct {
	question string
	reply    session.Reply
	err      error
}

type ingestMsg struct {
	report session.IngestReport
	err    error
	mode   session.Mode
}

type clearMsg struct {
	err  error
	mode session.Mode
}

// New creates a new TUI model instance.
func New(port SessionPort, opts Options) Model {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	ki := textinput.New()
	ki.Prompt = "API key: "
	ki.Placeholder = "paste your key and press Enter"
	ki.EchoMode = textinput.EchoPassword
	ki.EchoCharacter = '•'
	ki.Focus()

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask something, or /help"
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		port:     port,
		opts:     opts,
		work:     newInflight(),
		keyInput: ki,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		mode:     port.Mode(),
		status:   "Enter your API key to start.",
		pendDocs: opts.Docs,
	}
	m.renderer = m.newRenderer(80)
	return m
}

// Init starts the cursor blink and submits the environment key, if any.
func (m Model) Init() tea.Cmd {
	if m.opts.EnvKey == "" {
		return textinput.Blink
	}
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.submitKey(m.opts.EnvKey))
}

// Shutdown cancels the session calls still in flight and waits for them to
// return. Commands started afterwards do nothing.
func (m Model) Shutdown() { m.work.shutdown() }

func (m Model) newRenderer(width int) *glamour.TermRenderer {
	style := glamour.WithAutoStyle()
	if m.opts.Style != "" {
		style = glamour.WithStandardStyle(m.opts.Style)
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(max(20, width-8)))
	if err != nil {
		return nil
	}
	return r
}

// Update handles key, window and result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, bh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 2 + 1 + ih + 1 // banner and status, error line, input, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.input.Width = max(10, msg.Width-8)
		m.renderer = m.newRenderer(msg.Width)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case keyResultMsg:
		return m.onKeyResult(msg)

	case replyMsg:
		m.busy = false
		if msg.err != nil {
			m.errLine = describe(msg.err)
			m.status = "The message was not added to the history."
			return m, nil
		}
		m.errLine = ""
		m.mode = msg.reply.Mode
		m.entries = append(m.entries,
			entry{role: domain.RoleUser, text: msg.question},
			entry{role: domain.RoleAI, text: msg.reply.Text, sources: msg.reply.Sources})
		m.status = "Answered in " + msg.reply.Mode.String() + " mode."
		m.refresh()
		return m, nil

	case ingestMsg:
		m.busy = false
		m.mode = msg.mode
		if msg.err != nil {
			m.errLine = describe(msg.err)
			m.status = "Upload failed, nothing changed."
			return m, nil
		}
		m.errLine = ""
		note := fmt.Sprintf("Indexed %s (%d chunks). Answers now come only from these documents.",
			strings.Join(msg.report.Documents, ", "), msg.report.Chunks)
		if msg.report.Summary != "" {
			note += "\n\nPreview: " + msg.report.Summary
		}
		m.entries = []entry{{text: note, notice: true}}
		m.status = "Documents ready."
		m.refresh()
		return m, nil

	case clearMsg:
		m.busy = false
		m.mode = msg.mode
		m.entries = []entry{{text: "Document context cleared. Back to full knowledge mode.", notice: true}}
		m.errLine = ""
		if msg.err != nil {
			m.errLine = describe(msg.err)
		}
		m.status = "Context cleared."
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}
		if m.screen == keyScreen {
			return m.updateKeyScreen(msg)
		}
		return m.updateChat(msg)
	}

	var cmd tea.Cmd
	if m.screen == keyScreen {
		m.keyInput, cmd = m.keyInput.Update(msg)
	} else {
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m Model) updateKeyScreen(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEnter {
		key := strings.TrimSpace(m.keyInput.Value())
		if key == "" {
			m.errLine = "Please enter an API key."
			return m, nil
		}
		m.busy = true
		m.status = "Validating key..."
		return m, tea.Batch(m.spinner.Tick, m.submitKey(key))
	}
	var cmd tea.Cmd
	m.keyInput, cmd = m.keyInput.Update(msg)
	return m, cmd
}

func (m Model) onKeyResult(msg keyResultMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	if msg.err != nil {
		var cerr *domain.CredentialError
		switch {
		case errors.As(msg.err, &cerr) && cerr.Unauthorized:
			m.errLine = "The API key was rejected. Check it and try again."
		default:
			m.errLine = "Could not validate the key: " + msg.err.Error()
		}
		m.keyInput.SetValue("")
		m.status = "Enter your API key to start."
		return m, nil
	}
	m.errLine = ""
	m.mode = msg.mode
	m.screen = chatScreen
	m.keyInput.Blur()
	m.input.Focus()
	m.entries = []entry{{text: "Key accepted. Chatting in full knowledge mode; /upload a PDF to restrict answers to it.", notice: true}}
	m.status = "Ready."
	m.refresh()
	if len(m.pendDocs) > 0 {
		paths := m.pendDocs
		m.pendDocs = nil
		m.busy = true
		m.status = "Indexing documents..."
		return m, tea.Batch(m.spinner.Tick, m.ingest(paths))
	}
	return m, textinput.Blink
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		line := strings.TrimSpace(m.input.Value())
		if line == "" {
			return m, nil
		}
		m.input.SetValue("")
		if cmd, ok := parseCommand(line); ok {
			return m.runCommand(cmd)
		}
		m.busy = true
		m.status = "Thinking..."
		return m, tea.Batch(m.spinner.Tick, m.send(line))
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) runCommand(c command) (tea.Model, tea.Cmd) {
	switch c.name {
	case "quit", "exit":
		return m, tea.Quit
	case "help":
		m.entries = append(m.entries, entry{text: helpText, notice: true})
		m.refresh()
		return m, nil
	case "reset":
		m.port.ResetHistory()
		m.entries = []entry{{text: "Chat history reset.", notice: true}}
		m.status = "History reset."
		m.refresh()
		return m, nil
	case "clear":
		m.busy = true
		m.status = "Clearing document context..."
		return m, tea.Batch(m.spinner.Tick, m.clear())
	case "upload":
		if len(c.args) == 0 {
			m.errLine = "Usage: /upload <file.pdf> [more.pdf ...]"
			return m, nil
		}
		m.busy = true
		m.status = "Indexing documents..."
		return m, tea.Batch(m.spinner.Tick, m.ingest(c.args))
	default:
		m.errLine = fmt.Sprintf("Unknown command /%s, try /help.", c.name)
		return m, nil
	}
}

func (m Model) submitKey(key string) tea.Cmd {
	port, timeout, work := m.port, m.opts.Timeout, m.work
	return func() tea.Msg {
		if !work.begin() {
			return nil
		}
		defer work.end()
		ctx, cancel := context.WithTimeout(work.ctx, timeout)
		defer cancel()
		err := port.SubmitKey(ctx, key)
		return keyResultMsg{err: err, mode: port.Mode()}
	}
}

func (m Model) send(text string) tea.Cmd {
	port, timeout, work := m.port, m.opts.Timeout, m.work
	return func() tea.Msg {
		if !work.begin() {
			return nil
		}
		defer work.end()
		ctx, cancel := context.WithTimeout(work.ctx, timeout)
		defer cancel()
		reply, err := port.Send(ctx, text)
		return replyMsg{question: text, reply: reply, err: err}
	}
}

func (m Model) ingest(paths []string) tea.Cmd {
	port, timeout, read, work := m.port, m.opts.Timeout, m.opts.ReadDocuments, m.work
	return func() tea.Msg {
		if !work.begin() {
			return nil
		}
		defer work.end()
		if read == nil {
			return ingestMsg{err: errors.New("uploads are not available"), mode: port.Mode()}
		}
		docs, err := read(paths)
		if err != nil {
			return ingestMsg{err: err, mode: port.Mode()}
		}
		ctx, cancel := context.WithTimeout(work.ctx, timeout)
		defer cancel()
		report, err := port.Ingest(ctx, docs)
		return ingestMsg{report: report, err: err, mode: port.Mode()}
	}
}

func (m Model) clear() tea.Cmd {
	port, timeout, work := m.port, m.opts.Timeout, m.work
	return func() tea.Msg {
		if !work.begin() {
			return nil
		}
		defer work.end()
		ctx, cancel := context.WithTimeout(work.ctx, timeout)
		defer cancel()
		err := port.ClearContext(ctx)
		return clearMsg{err: err, mode: port.Mode()}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// describe turns session errors into one status line.
func describe(err error) string {
	var eerr *domain.ExtractionError
	switch {
	case errors.As(err, &eerr):
		return fmt.Sprintf("Could not read %s: %v", eerr.File, eerr.Err)
	case errors.Is(err, domain.ErrNoDocuments):
		return "No documents to index."
	case errors.Is(err, domain.ErrLocked):
		return "Submit a valid API key first."
	case errors.Is(err, domain.ErrUnauthorized):
		return "The API key is no longer accepted."
	case errors.Is(err, domain.ErrEmbedding):
		return "Embedding backend unavailable: " + err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out."
	case errors.Is(err, domain.ErrGeneration):
		return "The model did not answer: " + err.Error()
	default:
		return "Error: " + err.Error()
	}
}
