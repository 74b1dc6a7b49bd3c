package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// App is the root Bubble Tea model of the evaluation dashboard.
// App does NOT hold the store or the batch runner. It receives rows and run
// results via messages.
type App struct {
	loadRows func() tea.Cmd
	runEval  func() tea.Cmd

	rows    []EventRow
	windows []int
	window  int // index into windows
	cursor  int
	spinner spinner.Model
	err     error
	lastRun string
	width   int
	height  int
	ready   bool
	loading bool
	running bool
}

// NewApp creates the dashboard. loadRows reads the latest results; runEval
// re-runs the batch. Either may be nil. windows are the selectable lookahead
// windows in days.
func NewApp(loadRows func() tea.Cmd, runEval func() tea.Cmd, windows []int) App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorSuccess)
	if len(windows) == 0 {
		windows = []int{7, 14, 30}
	}
	return App{
		loadRows: loadRows,
		runEval:  runEval,
		windows:  append([]int(nil), windows...),
		spinner:  s,
	}
}

// Init loads the rows.
func (a App) Init() tea.Cmd {
	if a.loadRows != nil {
		return tea.Batch(a.loadRows(), a.spinner.Tick)
	}
	return nil
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		return a, nil

	case RowsLoaded:
		a.loading = false
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.rows = msg.Rows
		a.err = nil
		if a.cursor >= len(a.rows) {
			a.cursor = max(0, len(a.rows)-1)
		}
		return a, nil

	case EvalComplete:
		a.running = false
		if msg.Err != nil {
			a.err = msg.Err
		}
		a.lastRun = fmt.Sprintf("run %s: %d failed", shortID(msg.RunID), msg.Failed)
		if a.loadRows != nil {
			a.loading = true
			return a, a.loadRows()
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.err != nil {
		a.err = nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "j", "down":
		if a.cursor < len(a.rows)-1 {
			a.cursor++
		}
	case "k", "up":
		if a.cursor > 0 {
			a.cursor--
		}
	case "g", "home":
		a.cursor = 0
	case "G", "end":
		if len(a.rows) > 0 {
			a.cursor = len(a.rows) - 1
		}
	case "tab", "w":
		a.window = (a.window + 1) % len(a.windows)
	case "shift+tab", "W":
		a.window = (a.window + len(a.windows) - 1) % len(a.windows)

	case "r":
		if a.loadRows != nil {
			a.loading = true
			return a, a.loadRows()
		}
	case "e":
		if a.runEval != nil && !a.running {
			a.running = true
			return a, tea.Batch(a.runEval(), a.spinner.Tick)
		}
	}
	return a, nil
}

// View renders the dashboard.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	var b strings.Builder
	header := fmt.Sprintf("IASi evaluation  window %dd", a.Window())
	if a.running || a.loading {
		header += " " + a.spinner.View()
	}
	b.WriteString(Title.Render(header))
	b.WriteString("\n\n")

	contentHeight := a.height - 4
	if a.err != nil {
		contentHeight--
	}
	b.WriteString(RenderTable(a.rows, a.cursor, a.Window(), a.width, contentHeight))

	if a.err != nil {
		b.WriteString(ErrorStyle.Width(a.width).Render("Error: " + a.err.Error() + " (press any key to dismiss)"))
		b.WriteString("\n")
	}
	b.WriteString(a.statusBar())
	return b.String()
}

func (a App) statusBar() string {
	hints := []struct{ key, text string }{
		{"j/k", "move"},
		{"tab", "window"},
		{"e", "evaluate"},
		{"r", "reload"},
		{"q", "quit"},
	}
	var parts []string
	for _, h := range hints {
		parts = append(parts, StatusBarKey.Render(h.key)+" "+StatusBarText.Render(h.text))
	}
	left := strings.Join(parts, "  ")
	right := fmt.Sprintf("%d/%d", min(a.cursor+1, len(a.rows)), len(a.rows))
	if a.running {
		right = "evaluating… " + right
	} else if a.lastRun != "" {
		right = DoneStyle.Render(a.lastRun) + "  " + right
	}
	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return StatusBar.Width(a.width).Render(left + strings.Repeat(" ", gap) + right)
}

// Window returns the selected window in days.
func (a App) Window() int { return a.windows[a.window] }

// Cursor returns the current cursor position (for testing).
func (a App) Cursor() int { return a.cursor }

// Rows returns the current rows (for testing).
func (a App) Rows() []EventRow { return a.rows }

// Running reports whether an evaluation is in flight.
func (a App) Running() bool { return a.running }

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
