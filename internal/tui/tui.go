// Package tui implements the operator console for the chat host.
//
// The console renders one tab per connection, the transcript of the active
// tab, and a single-line input box. It never touches sockets directly:
// everything it knows about the network comes from the four Host
// operations, polled on a fixed interval so new connections and inbound
// messages appear without operator interaction.
package tui

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"switchboard/internal/chatserver"
	"switchboard/internal/logger"
)

const (
	// pollInterval is how often the console resyncs connections and
	// transcripts from the host.
	pollInterval = 250 * time.Millisecond

	errorDisplayDuration = 5 * time.Second

	defaultInputPlaceholder = "Press e to type, Enter to send"
)

// ErrNoConnection is shown when the operator sends with no tab selected.
var ErrNoConnection = errors.New("no connection selected")

// Host is the view the console has of the chat host: connection count,
// identities, transcripts, and sends. *chatserver.Registry satisfies it.
type Host interface {
	Count() int
	IDs() []chatserver.ConnID
	History(id chatserver.ConnID) ([]string, bool)
	Send(id chatserver.ConnID, text string) error
}

type inputMode int

const (
	modeNormal inputMode = iota
	modeEditing
)

// refreshMsg drives the poll loop.
type refreshMsg struct{}

type Model struct {
	host       Host
	listenAddr string
	log        *logger.Logger

	// ids is the sorted tab order; active indexes into it, -1 when there
	// are no connections.
	ids    []chatserver.ConnID
	active int

	viewport  viewport.Model
	input     textinput.Model
	mode      inputMode
	ready     bool
	width     int
	height    int
	wrapWidth int

	err             error
	errVisibleUntil time.Time
}

// New creates the console for the given host. listenAddr is only displayed,
// so callers pass the resolved address rather than the configured one.
func New(host Host, listenAddr string) *Model {
	ti := textinput.New()
	ti.Placeholder = defaultInputPlaceholder
	ti.Prompt = "> "
	ti.CharLimit = 1024
	ti.Width = 80

	vp := viewport.New(80, 20)
	vp.SetContent("")

	m := &Model{
		host:       host,
		listenAddr: listenAddr,
		log:        logger.Global().WithPrefix("tui"),
		active:     -1,
		viewport:   vp,
		input:      ti,
		mode:       modeNormal,
	}

	if width, height, ok := detectTerminalSize(); ok {
		m.applyWindowSize(width, height)
	}
	m.syncConnections()
	m.updateViewport()

	return m
}

func detectTerminalSize() (int, int, bool) {
	candidates := []*os.File{os.Stdout, os.Stdin, os.Stderr}
	for _, f := range candidates {
		if f == nil {
			continue
		}
		fd := int(f.Fd())
		if !term.IsTerminal(fd) {
			continue
		}
		if width, height, err := term.GetSize(fd); err == nil && width > 0 && height > 0 {
			return width, height, true
		}
	}
	return 0, 0, false
}

func (m *Model) Init() tea.Cmd {
	initialWindowSize := func() tea.Msg {
		fd := int(os.Stdout.Fd())
		if !term.IsTerminal(fd) {
			return nil
		}
		if width, height, err := term.GetSize(fd); err == nil && width > 0 && height > 0 {
			return tea.WindowSizeMsg{
				Width:  width,
				Height: height,
			}
		}
		return nil
	}

	return tea.Batch(
		textinput.Blink,
		initialWindowSize,
		m.scheduleRefresh(),
	)
}

// scheduleRefresh arms the next poll tick. Exactly one tick is in flight at
// a time: Init arms the first and each refreshMsg arms its successor.
func (m *Model) scheduleRefresh() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.applyWindowSize(msg.Width, msg.Height)
		m.updateViewport()
		return m, nil

	case refreshMsg:
		m.syncConnections()
		m.updateViewport()
		return m, m.scheduleRefresh()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	// Everything else is component plumbing, e.g. cursor blinks.
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.mode {
	case modeNormal:
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "e":
			m.mode = modeEditing
			return m, m.input.Focus()
		case "right":
			m.nextConnection()
			m.updateViewport()
		case "left":
			m.previousConnection()
			m.updateViewport()
		case "up":
			m.viewport.ScrollUp(1)
		case "down":
			m.viewport.ScrollDown(1)
		}
		return m, nil

	case modeEditing:
		switch msg.String() {
		case "enter":
			m.sendInput()
			m.updateViewport()
			return m, nil
		case "esc":
			m.mode = modeNormal
			m.input.Blur()
			return m, nil
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m, nil
}

// syncConnections refreshes the tab order from the host. The active tab
// follows its connection ID across changes; when that connection is gone
// the neighboring tab takes over.
func (m *Model) syncConnections() {
	var activeID chatserver.ConnID
	hadActive := m.active >= 0 && m.active < len(m.ids)
	if hadActive {
		activeID = m.ids[m.active]
	}

	ids := m.host.IDs()
	slices.Sort(ids)
	m.ids = ids

	if len(ids) == 0 {
		m.active = -1
		return
	}

	if hadActive {
		if idx, found := slices.BinarySearch(ids, activeID); found {
			m.active = idx
			return
		}
	}
	if m.active < 0 {
		m.active = 0
	}
	if m.active >= len(ids) {
		m.active = len(ids) - 1
	}
}

// activeConn resolves the active tab to its connection ID.
func (m *Model) activeConn() (chatserver.ConnID, bool) {
	if m.active < 0 || m.active >= len(m.ids) {
		return 0, false
	}
	return m.ids[m.active], true
}

func (m *Model) nextConnection() {
	if len(m.ids) == 0 {
		return
	}
	m.active = (m.active + 1) % len(m.ids)
	m.viewport.GotoBottom()
}

func (m *Model) previousConnection() {
	if len(m.ids) == 0 {
		return
	}
	if m.active > 0 {
		m.active--
	} else {
		m.active = len(m.ids) - 1
	}
	m.viewport.GotoBottom()
}

// sendInput delivers the input box content to the active connection. The
// input is cleared on every attempt; a failed send surfaces in the footer
// and the dead tab disappears on the next poll.
func (m *Model) sendInput() {
	text := m.input.Value()
	if text == "" {
		return
	}

	id, ok := m.activeConn()
	if !ok {
		m.setError(ErrNoConnection)
		return
	}

	if err := m.host.Send(id, text); err != nil {
		m.log.Warn("send to connection %d failed: %v", id, err)
		m.setError(err)
	}
	m.input.Reset()
}

func (m *Model) setError(err error) {
	m.err = err
	m.errVisibleUntil = time.Now().Add(errorDisplayDuration)
}

func (m *Model) applyWindowSize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}

	m.width = width
	m.height = height

	// Tab bar, input box, footer, and the blank lines between them.
	vpHeight := height - 7
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}

	inputWidth := width - 6
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth

	m.wrapWidth = width - 2
	if m.wrapWidth < 10 {
		m.wrapWidth = 10
	}
}

// ActiveConnID exposes the active tab's connection for tests and the
// footer; ok is false when no tab is selected.
func (m *Model) ActiveConnID() (chatserver.ConnID, bool) {
	return m.activeConn()
}

func connLabel(id chatserver.ConnID) string {
	return fmt.Sprintf("%d", id)
}
