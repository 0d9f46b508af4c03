package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nibzard/ordo/internal/orderindex"
	"github.com/nibzard/ordo/internal/store/memstore"
	"github.com/nibzard/ordo/internal/tasks"
)

const user = "alice"

// failingMoves wraps a service and fails the next n moves.
type failingMoves struct {
	*tasks.Service
	fail int
}

func (f *failingMoves) Move(ctx context.Context, user string, req tasks.MoveRequest) ([]orderindex.Assignment, error) {
	if f.fail > 0 {
		f.fail--
		return nil, &orderindex.StorageError{Op: "apply", Scope: user, Err: errors.New("throttled")}
	}
	return f.Service.Move(ctx, user, req)
}

func newBoard(t *testing.T, titles ...string) (*Model, *failingMoves) {
	t.Helper()
	store := memstore.New()
	order, err := orderindex.New(store, orderindex.DefaultSpace())
	require.NoError(t, err)
	seq := 0
	clock := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	svc := tasks.NewService(store, order,
		tasks.WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
		tasks.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("t%02d", seq)
		}),
	)
	for _, title := range titles {
		_, err := svc.Create(context.Background(), user, tasks.Draft{Title: title}, tasks.Last())
		require.NoError(t, err)
	}

	fm := &failingMoves{Service: svc}
	m := NewModel(context.Background(), fm, user)
	run(m, m.Init())
	return m, fm
}

// run feeds the messages produced by cmd back into the model until no
// command is left.
func run(m *Model, cmd tea.Cmd) {
	for cmd != nil {
		msg := cmd()
		if _, ok := msg.(tea.QuitMsg); ok {
			return
		}
		_, cmd = m.Update(msg)
	}
}

func press(m *Model, keys ...string) {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case " ":
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		_, cmd := m.Update(msg)
		run(m, cmd)
	}
}

func titles(m *Model) []string {
	out := make([]string, len(m.tasks))
	for i, t := range m.tasks {
		out[i] = t.Title
	}
	return out
}

func TestCursorMovement(t *testing.T) {
	m, _ := newBoard(t, "a", "b", "c")
	require.Equal(t, []string{"a", "b", "c"}, titles(m))

	press(m, "j", "j", "j")
	assert.Equal(t, 2, m.cursor, "cursor stops at the last row")
	press(m, "k", "k", "k")
	assert.Equal(t, 0, m.cursor, "cursor stops at the first row")
}

func TestMoveKeys(t *testing.T) {
	m, _ := newBoard(t, "a", "b", "c", "d")

	press(m, "J")
	assert.Equal(t, []string{"b", "a", "c", "d"}, titles(m))
	assert.Equal(t, 1, m.cursor, "cursor follows the moved task")

	press(m, "G")
	assert.Equal(t, []string{"b", "c", "d", "a"}, titles(m))
	assert.Equal(t, 3, m.cursor)

	press(m, "k", "g")
	assert.Equal(t, []string{"d", "b", "c", "a"}, titles(m))
	assert.Equal(t, 0, m.cursor)

	press(m, "K")
	assert.Equal(t, []string{"d", "b", "c", "a"}, titles(m), "moving the top task up is a no-op")
}

func TestFailedMoveReloads(t *testing.T) {
	m, fm := newBoard(t, "a", "b", "c")
	fm.fail = 1

	press(m, "J")
	assert.True(t, m.failed)
	assert.Contains(t, m.status, "try again")
	assert.Equal(t, []string{"a", "b", "c"}, titles(m))
	assert.Equal(t, 0, m.cursor)

	press(m, "J")
	assert.False(t, m.failed)
	assert.Equal(t, []string{"b", "a", "c"}, titles(m))
}

func TestToggleDeleteAndFilter(t *testing.T) {
	m, _ := newBoard(t, "a", "b", "c")

	press(m, "j", " ")
	require.True(t, m.tasks[1].Completed)
	assert.Equal(t, 1, m.stats.Completed)

	press(m, "f")
	assert.Equal(t, tasks.FilterActive, m.filter)
	assert.Equal(t, []string{"a", "c"}, titles(m))

	require.Equal(t, 1, m.cursor)

	// Moves inside a filtered view keep hidden rows in place.
	press(m, "K")
	assert.Equal(t, []string{"c", "a"}, titles(m))
	assert.Equal(t, 0, m.cursor)

	press(m, "f", "f")
	assert.Equal(t, tasks.FilterAll, m.filter)
	assert.Equal(t, []string{"c", "a", "b"}, titles(m))

	press(m, "g", "d")
	assert.Equal(t, []string{"a", "b"}, titles(m))
	assert.Equal(t, 0, m.cursor, "cursor lands on the next row")
}

func TestViewAndQuit(t *testing.T) {
	m, _ := newBoard(t, "write report", "ship")
	press(m, " ")

	view := m.View()
	assert.Contains(t, view, "ordo · alice")
	assert.Contains(t, view, "1 open, 1 done")
	assert.Contains(t, view, "ship")
	assert.True(t, strings.Contains(view, "[x]"))

	press(m, "?")
	assert.Contains(t, m.View(), "Keyboard Shortcuts")
	press(m, "j")
	assert.False(t, m.showHelp)
	assert.Equal(t, 0, m.cursor, "key that closes help is not applied")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
}

func TestEmptyAndErrorViews(t *testing.T) {
	m, _ := newBoard(t)
	assert.Contains(t, m.View(), "No tasks")
	press(m, "J", "d", " ")

	m.Update(loadedMsg{err: errors.New("disk gone")})
	assert.Contains(t, m.View(), "disk gone")
}

func TestIsTTY(t *testing.T) {
	var b strings.Builder
	assert.False(t, IsTTY(&b))
}
