package render

import (
	"context"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"branchgraph.dev/branchgraph/internal/kernel"
)

// frameMsg carries a freshly-evaluated Frame into the bubbletea event loop.
// The kernel's Drive loop runs on its own goroutine and can't call the
// running tea.Program's Update directly, so it hands frames across
// through Program.Send instead.
type frameMsg struct {
	frame Frame
	err   error
}

func newFilterInput() textinput.Model {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.CharLimit = 200
	return ti
}

type model struct {
	frame     Frame
	filtering bool
	filter    textinput.Model
	width     int
	err       error
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.frame = msg.frame
		m.err = msg.err
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		switch msg.Type {
		case tea.KeyEsc:
			m.filtering = false
			m.filter.SetValue("")
			return m, nil
		case tea.KeyEnter:
			m.filtering = false
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "/":
		m.filtering = true
		m.filter = newFilterInput()
		m.filter.Focus()
		return m, textinput.Blink
	}
	return m, nil
}

func (m model) View() string {
	var bar string
	if m.filtering {
		bar = filterBarStyle.Render(m.filter.View()) + "\n"
	}
	return bar + RenderFrameWidth(m.frame, m.filter.Value(), m.width)
}

// Run drives frameCell to completion on its own goroutine and feeds each
// resulting Frame into a full-screen bubbletea program, until the user
// quits or ctx is cancelled. It returns once the program exits.
func Run(ctx context.Context, k *kernel.Kernel, frameCell *kernel.Cell) error {
	p := tea.NewProgram(model{}, tea.WithAltScreen())

	stop := make(chan struct{})
	var closeOnce sync.Once
	doStop := func() { closeOnce.Do(func() { close(stop) }) }
	go func() {
		<-ctx.Done()
		doStop()
	}()

	go k.Drive(frameCell, stop, func(v any, err error) {
		if err != nil {
			p.Send(frameMsg{err: err})
			return
		}
		p.Send(frameMsg{frame: v.(Frame)})
	})

	_, err := p.Run()
	doStop()
	return err
}

// RenderOnce evaluates frameCell a single time and returns its plain-text
// rendering, for non-watch invocations and non-tty output (pipes,
// redirected stdout).
func RenderOnce(frameCell *kernel.Cell) (string, error) {
	v, err := frameCell.Read()
	if err != nil {
		return "", err
	}
	return RenderFrame(v.(Frame), ""), nil
}
