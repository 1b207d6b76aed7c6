// Package tui is a terminal tail view of the audit log. The view holds no
// state of its own beyond what a bridge delivers: every snapshot arrives as a
// message, and store operations run as commands outside rendering.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jaakkos/auditwatch/internal/auditlog"
)

// Pager is the subset of *auditlog.Store the view drives.
type Pager interface {
	Refresh(ctx context.Context) error
	NextPage(ctx context.Context) error
	PreviousPage(ctx context.Context) error
}

type snapshotMsg struct {
	snap auditlog.Snapshot
}

type opDoneMsg struct {
	op  string
	err error
}

const (
	defaultWidth = 100
	timeLayout   = "2006-01-02 15:04:05"
)

// Model is the bubbletea model of the tail view.
type Model struct {
	ctx    context.Context
	pager  Pager
	filter *auditlog.Filter

	snap    auditlog.Snapshot
	hasSnap bool
	lastOp  string
	err     error
	width   int
}

// New returns a model that shows nothing until the first snapshot arrives.
// filter may be nil.
func New(ctx context.Context, pager Pager, filter *auditlog.Filter) Model {
	return Model{ctx: ctx, pager: pager, filter: filter, width: defaultWidth}
}

// SnapshotMsg wraps a delivered snapshot for tea.Program.Send.
func SnapshotMsg(snap auditlog.Snapshot) tea.Msg {
	return snapshotMsg{snap: snap}
}

func (m Model) Init() tea.Cmd {
	return m.run("refresh", m.pager.Refresh)
}

func (m Model) run(op string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.snap = msg.snap
		m.hasSnap = true
		return m, nil
	case opDoneMsg:
		m.lastOp = msg.op
		m.err = msg.err
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.run("refresh", m.pager.Refresh)
		case "n":
			if m.snap.Paging == nil || m.snap.Paging.NextPage == 0 {
				return m, nil
			}
			return m, m.run("next page", m.pager.NextPage)
		case "p":
			if m.snap.Paging == nil || m.snap.Paging.PreviousPage == 0 {
				return m, nil
			}
			return m, m.run("previous page", m.pager.PreviousPage)
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("auditwatch tail"))
	b.WriteString("  ")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	switch {
	case !m.hasSnap || m.snap.Model == nil:
		if m.snap.IsLoading || !m.hasSnap {
			b.WriteString(statusStyle.Render("Loading audit log..."))
		} else {
			b.WriteString(statusStyle.Render("Nothing loaded."))
		}
		b.WriteString("\n")
	default:
		b.WriteString(m.table())
	}

	b.WriteString("\n")
	b.WriteString(m.footer())
	return b.String()
}

func (m Model) statusLine() string {
	var parts []string
	switch {
	case m.snap.IsSaving:
		parts = append(parts, busyStyle.Render("saving"))
	case m.snap.IsLoading:
		parts = append(parts, busyStyle.Render("loading"))
	default:
		parts = append(parts, statusStyle.Render("live"))
	}
	if f := m.filter.String(); f != "" {
		parts = append(parts, statusStyle.Render("filter: "+f))
	}
	if m.err != nil && !errors.Is(m.err, context.Canceled) {
		parts = append(parts, errorStyle.Render(fmt.Sprintf("%s failed: %v", m.lastOp, m.err)))
	}
	return strings.Join(parts, "  ")
}

func (m Model) table() string {
	entries := m.snap.Model.Entries
	shown, err := auditlog.FilterEntries(m.filter, entries)
	if err != nil {
		return errorStyle.Render(err.Error()) + "\n"
	}
	if len(shown) == 0 {
		if len(entries) == 0 {
			return statusStyle.Render("No audit entries.") + "\n"
		}
		return statusStyle.Render(fmt.Sprintf("No entries on this page match the filter (%d hidden).", len(entries))) + "\n"
	}

	logWidth := m.width - len(timeLayout) - 36
	if logWidth < 20 {
		logWidth = 20
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-19s  %-20s  %-10s  %s", "WHEN", "AUTHOR", "ENV", "LOG")))
	b.WriteString("\n")
	for _, e := range shown {
		b.WriteString(timeStyle.Render(e.CreatedAt.Local().Format(timeLayout)))
		b.WriteString("  ")
		b.WriteString(fmt.Sprintf("%-20s", truncate(e.Author, 20)))
		b.WriteString("  ")
		b.WriteString(envStyle.Render(fmt.Sprintf("%-10s", truncate(e.Environment, 10))))
		b.WriteString("  ")
		b.WriteString(truncate(e.Log, logWidth))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) footer() string {
	paging := "-"
	if p := m.snap.Paging; p != nil {
		paging = fmt.Sprintf("page %d/%d  %d entries", p.Page, p.Pages(), p.Count)
	}
	keys := "n older  p newer  r reload  q quit"
	return lipgloss.JoinHorizontal(lipgloss.Top, statusBarStyle.Render(paging), footerStyle.Render(keys))
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
