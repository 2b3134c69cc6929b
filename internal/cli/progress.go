package cli

import (
	"errors"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// checkpointReader is the part of the store the progress UI polls.
type checkpointReader interface {
	Read() (checkpoint.Checkpoint, error)
}

// tickMsg triggers polling the progress file
type tickMsg time.Time

// checkpointMsg carries the checkpoint read from disk
type checkpointMsg struct {
	cp  checkpoint.Checkpoint
	err error
}

// progressModel is the bubbletea model for pipeline progress.
type progressModel struct {
	reader   checkpointReader
	interval time.Duration
	cp       *checkpoint.Checkpoint
	progress progress.Model
	theme    Theme
	warning  string
	done     bool
	quitting bool
	err      error
}

func newProgressModel(r checkpointReader, interval time.Duration) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
	return progressModel{
		reader:   r,
		interval: interval,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init reads the progress file right away.
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.readCheckpoint(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.readCheckpoint()

	case checkpointMsg:
		switch {
		case errors.Is(msg.err, checkpoint.ErrNotFound):
			m.cp, m.warning = nil, ""
		case msg.err != nil:
			// A half-written or corrupt file is usually transient.
			m.warning = msg.err.Error()
		default:
			cp := msg.cp
			m.cp, m.warning = &cp, ""
			if runEnded(cp) {
				m.done = true
				if cp.ScriptStatus == checkpoint.ScriptError {
					m.err = fmt.Errorf("%s: %s", cp.Stage.Label(), cp.Detail.ErrorMessage())
				}
				return m, tea.Quit
			}
		}
		return m, m.tick()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	hint := m.theme.hintStyle().Render("Press q to stop watching; the pipeline keeps running")
	if m.cp == nil {
		return fmt.Sprintf("%s\n%s\n", m.theme.statusStyle().Render("[Sin iniciar]"), hint)
	}

	v := checkpoint.NewView(*m.cp)
	step := v.CurrentStage
	if v.Substage != "" {
		step += " / " + v.Substage
	}
	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", step))
	bar := m.progress.ViewAs(v.Percentage / 100)

	counts := ""
	if v.ProcessedCount != nil && v.TotalCount != nil {
		counts = fmt.Sprintf("%d/%d", *v.ProcessedCount, *v.TotalCount)
	}
	overall := fmt.Sprintf("%d/%d pasos", len(v.CompletedStages), len(checkpoint.Steps()))

	out := fmt.Sprintf("%s %s %s\n%s\n", status, bar, counts, overall)
	if m.warning != "" {
		out += m.theme.errorStyle().Render("Warning: "+m.warning) + "\n"
	}
	return out + hint + "\n"
}

func (m progressModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render("\nStopped watching. Use 'traductor status' to check progress.\n")
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Pipeline failed: %s\n", m.err))
	}
	return m.theme.completedStyle().Render("✓ Modelo entrenado e instalado\n")
}

// readCheckpoint reads the progress file off the update loop.
func (m progressModel) readCheckpoint() tea.Cmd {
	return func() tea.Msg {
		cp, err := m.reader.Read()
		return checkpointMsg{cp: cp, err: err}
	}
}

func (m progressModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runStatusProgress runs the interactive progress UI until the pipeline ends
// or the user quits. A failed pipeline is returned as an error.
func runStatusProgress(r checkpointReader, interval time.Duration) error {
	p := tea.NewProgram(newProgressModel(r, interval))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}
	if m, ok := finalModel.(progressModel); ok && !m.quitting && m.err != nil {
		return m.err
	}
	return nil
}
