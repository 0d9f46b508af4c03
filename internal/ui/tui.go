// Package ui provides the terminal task board.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nibzard/ordo/internal/orderindex"
	"github.com/nibzard/ordo/internal/tasks"
	"github.com/nibzard/ordo/internal/todo"
	"github.com/nibzard/ordo/internal/utils"
)

// TaskService is the part of tasks.Service the board drives.
type TaskService interface {
	List(ctx context.Context, user string, p tasks.Page) (tasks.Listing, error)
	Move(ctx context.Context, user string, req tasks.MoveRequest) ([]orderindex.Assignment, error)
	Toggle(ctx context.Context, user, id string) (todo.Task, error)
	Delete(ctx context.Context, user, id string) error
}

// RunTUI starts the board for user and blocks until it quits.
func RunTUI(ctx context.Context, svc TaskService, user string) error {
	if !IsTTY(os.Stdout) {
		return fmt.Errorf("tui requires a TTY")
	}
	model := NewModel(ctx, svc, user)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Model is the bubbletea model of the board.
type Model struct {
	ctx    context.Context
	svc    TaskService
	user   string
	filter tasks.Filter

	tasks    []todo.Task
	stats    tasks.UserStats
	cursor   int
	loaded   bool
	loadErr  error
	status   string
	failed   bool
	showHelp bool
	width    int
}

type loadedMsg struct {
	listing tasks.Listing
	err     error
	// focus is the task id to put the cursor on after loading.
	focus string
}

type actionMsg struct {
	verb  string
	id    string
	err   error
	focus string
}

// NewModel returns a board model for user.
func NewModel(ctx context.Context, svc TaskService, user string) *Model {
	return &Model{ctx: ctx, svc: svc, user: user, filter: tasks.FilterAll}
}

func (m *Model) Init() tea.Cmd {
	return m.load("")
}

func (m *Model) load(focus string) tea.Cmd {
	ctx, svc, user, filter := m.ctx, m.svc, m.user, m.filter
	return func() tea.Msg {
		listing, err := svc.List(ctx, user, tasks.Page{Filter: filter})
		return loadedMsg{listing: listing, err: err, focus: focus}
	}
}

func (m *Model) selected() (todo.Task, bool) {
	if m.cursor < 0 || m.cursor >= len(m.tasks) {
		return todo.Task{}, false
	}
	return m.tasks[m.cursor], true
}

// window returns the ids of the displayed rows.
func (m *Model) window() []string {
	ids := make([]string, len(m.tasks))
	for i, t := range m.tasks {
		ids[i] = t.ID
	}
	return ids
}

func (m *Model) move(target int) tea.Cmd {
	task, ok := m.selected()
	if !ok || target < 0 || target >= len(m.tasks) || target == m.cursor {
		return nil
	}
	ctx, svc, user := m.ctx, m.svc, m.user
	req := tasks.MoveRequest{Window: m.window(), ItemID: task.ID, Target: target}
	m.status = "moving..."
	return func() tea.Msg {
		_, err := svc.Move(ctx, user, req)
		return actionMsg{verb: "move", id: req.ItemID, err: err, focus: req.ItemID}
	}
}

func (m *Model) toggle() tea.Cmd {
	task, ok := m.selected()
	if !ok {
		return nil
	}
	ctx, svc, user := m.ctx, m.svc, m.user
	return func() tea.Msg {
		_, err := svc.Toggle(ctx, user, task.ID)
		return actionMsg{verb: "toggle", id: task.ID, err: err, focus: task.ID}
	}
}

func (m *Model) remove() tea.Cmd {
	task, ok := m.selected()
	if !ok {
		return nil
	}
	focus := ""
	if m.cursor+1 < len(m.tasks) {
		focus = m.tasks[m.cursor+1].ID
	} else if m.cursor > 0 {
		focus = m.tasks[m.cursor-1].ID
	}
	ctx, svc, user := m.ctx, m.svc, m.user
	return func() tea.Msg {
		err := svc.Delete(ctx, user, task.ID)
		return actionMsg{verb: "delete", id: task.ID, err: err, focus: focus}
	}
}

func nextFilter(f tasks.Filter) tasks.Filter {
	switch f {
	case tasks.FilterAll:
		return tasks.FilterActive
	case tasks.FilterActive:
		return tasks.FilterCompleted
	default:
		return tasks.FilterAll
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case loadedMsg:
		m.loaded = true
		m.loadErr = msg.err
		if msg.err != nil {
			return m, nil
		}
		m.tasks = msg.listing.Tasks
		m.stats = msg.listing.Stats
		m.focus(msg.focus)
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.failed = true
			if msg.verb == "move" {
				m.status = fmt.Sprintf("move failed, list reloaded; try again (%v)", msg.err)
			} else {
				m.status = fmt.Sprintf("%s failed: %v", msg.verb, msg.err)
			}
			return m, m.load(msg.id)
		}
		m.failed = false
		m.status = ""
		return m, m.load(msg.focus)

	case tea.KeyMsg:
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "j", "down":
			if m.cursor < len(m.tasks)-1 {
				m.cursor++
			}
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}
		case "J", "shift+down":
			return m, m.move(m.cursor + 1)
		case "K", "shift+up":
			return m, m.move(m.cursor - 1)
		case "g", "home":
			return m, m.move(0)
		case "G", "end":
			return m, m.move(len(m.tasks) - 1)
		case " ", "x":
			return m, m.toggle()
		case "d", "delete":
			return m, m.remove()
		case "f":
			m.filter = nextFilter(m.filter)
			m.status = ""
			return m, m.load(m.focusID())
		case "r", "f5":
			m.status = ""
			m.failed = false
			return m, m.load(m.focusID())
		case "?", "h":
			m.showHelp = true
		}
	}
	return m, nil
}

func (m *Model) focusID() string {
	if t, ok := m.selected(); ok {
		return t.ID
	}
	return ""
}

// focus puts the cursor on id, or clamps it when id is gone.
func (m *Model) focus(id string) {
	if id != "" {
		for i, t := range m.tasks {
			if t.ID == id {
				m.cursor = i
				return
			}
		}
	}
	if m.cursor >= len(m.tasks) {
		m.cursor = len(m.tasks) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	metaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	cursorStyle   = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("236")).Foreground(lipgloss.Color("255"))
	doneStyle     = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	footerStyle   = lipgloss.NewStyle().Faint(true)
	priorityStyle = map[todo.Priority]lipgloss.Style{
		todo.PriorityUrgent: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		todo.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		todo.PriorityNormal: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		todo.PriorityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
	}
)

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ordo · "+m.user) + "  ")
	b.WriteString(metaStyle.Render(fmt.Sprintf("%d open, %d done, filter %s",
		m.stats.Active(), m.stats.Completed, m.filter)))
	b.WriteString("\n\n")

	if m.showHelp {
		writeHelp(&b)
		return b.String()
	}

	switch {
	case m.loadErr != nil:
		b.WriteString(errorStyle.Render("Error loading tasks: "+m.loadErr.Error()) + "\n\n")
	case !m.loaded:
		b.WriteString("Loading...\n\n")
	case len(m.tasks) == 0:
		b.WriteString(metaStyle.Render("  No tasks. Add one with `ordo add`.") + "\n\n")
	default:
		for i, t := range m.tasks {
			b.WriteString(m.formatRow(t, i == m.cursor))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.status != "" {
		style := metaStyle
		if m.failed {
			style = errorStyle
		}
		b.WriteString(style.Render(m.status) + "\n")
	}
	b.WriteString(footerStyle.Render("j/k select · J/K move · g/G top/bottom · space done · d delete · f filter · r reload · ? help · q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) formatRow(t todo.Task, selected bool) string {
	check := "[ ]"
	if t.Completed {
		check = "[x]"
	}
	width := m.width - 24
	if width < 20 {
		width = 60
	}
	title := utils.Truncate(t.Title, width)
	if t.Completed {
		title = doneStyle.Render(title)
	}
	prio := priorityStyle[t.Priority].Render(fmt.Sprintf("%-6s", t.Priority))
	line := fmt.Sprintf(" %s %s %s", check, prio, title)
	if t.DueDate != "" {
		line += metaStyle.Render("  due " + t.DueDate)
	}
	if selected {
		return cursorStyle.Render(">") + line
	}
	return " " + line
}

func writeHelp(b *strings.Builder) {
	b.WriteString("Keyboard Shortcuts\n\n")
	b.WriteString("  j, k / arrows    Select next / previous task\n")
	b.WriteString("  J, K             Move selected task down / up\n")
	b.WriteString("  g, G             Move selected task to top / bottom\n")
	b.WriteString("  space, x         Toggle done\n")
	b.WriteString("  d                Delete selected task\n")
	b.WriteString("  f                Cycle filter: all, active, completed\n")
	b.WriteString("  r, F5            Reload\n")
	b.WriteString("  q, ctrl+c        Quit\n\n")
	b.WriteString("Press any key to return.\n")
}

// IsTTY returns true if w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
