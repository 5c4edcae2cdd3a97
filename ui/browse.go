// Package ui is the terminal browser for the exchange journal.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"axiom/db"
	"axiom/etc"
)

const maxItems = 1000

// Fetch returns the most recent exchanges, newest first.
type Fetch func(ctx context.Context) ([]db.Exchange, error)

type exchangeItem struct {
	exchange db.Exchange
}

func (i exchangeItem) Title() string {
	return etc.Truncate(strings.Join(strings.Fields(i.exchange.Question), " "), 80, "…")
}

func (i exchangeItem) Description() string {
	return fmt.Sprintf(
		"%s · %s · %s · %s",
		i.exchange.CreatedAt.Local().Format("15:04:05"),
		i.exchange.Source,
		i.exchange.UserID,
		i.exchange.Status,
	)
}

func (i exchangeItem) FilterValue() string {
	return i.exchange.Question
}

type refreshMsg struct {
	exchanges []db.Exchange
	err       error
}

type Model struct {
	list     list.Model
	fetch    Fetch
	interval time.Duration
	seen     map[string]bool
	err      error

	quitting      bool
	showingAnswer bool
	answer        viewport.Model
}

// NewBrowser lists existing exchanges and polls fetch every interval for
// new ones.
func NewBrowser(existing []db.Exchange, fetch Fetch, interval time.Duration) *Model {
	m := &Model{
		fetch:    fetch,
		interval: interval,
		seen:     make(map[string]bool),
	}

	items := make([]list.Item, 0, len(existing))
	for _, ex := range existing {
		m.seen[ex.ID] = true
		items = append(items, exchangeItem{exchange: ex})
	}

	m.list = list.New(items, list.NewDefaultDelegate(), 0, 0)
	m.list.Title = "Axiom Exchanges"
	m.list.SetShowStatusBar(false)
	m.list.Styles.Title = titleStyle
	m.list.Styles.PaginationStyle = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	m.list.Styles.HelpStyle = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)

	m.answer = viewport.New(0, 0)
	m.answer.Style = lipgloss.NewStyle().Padding(1, 2)

	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.poll(),
		tea.EnterAltScreen,
	)
}

func (m Model) poll() tea.Cmd {
	if m.fetch == nil || m.interval <= 0 {
		return nil
	}
	fetch := m.fetch
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		exchanges, err := fetch(ctx)
		return refreshMsg{exchanges: exchanges, err: err}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if !m.showingAnswer {
				item, ok := m.list.SelectedItem().(exchangeItem)
				if !ok {
					return m, nil
				}
				m.showingAnswer = true
				m.answer.SetContent(renderExchange(item.exchange, m.answer.Width))
				m.answer.GotoTop()
			} else {
				m.showingAnswer = false
			}
			return m, nil
		case "esc":
			if m.showingAnswer {
				m.showingAnswer = false
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()

		m.answer.Width = msg.Width - h
		m.answer.Height = msg.Height - v

		m.list.SetSize(msg.Width-h, msg.Height-v)

	case refreshMsg:
		m.err = msg.err
		// newest first, so walk backwards to keep the newest on top
		for i := len(msg.exchanges) - 1; i >= 0; i-- {
			ex := msg.exchanges[i]
			if m.seen[ex.ID] {
				continue
			}
			m.seen[ex.ID] = true
			m.list.InsertItem(0, exchangeItem{exchange: ex})
		}
		for len(m.list.Items()) > maxItems {
			m.list.RemoveItem(len(m.list.Items()) - 1)
		}
		return m, m.poll()
	}

	if m.showingAnswer {
		m.answer, cmd = m.answer.Update(msg)
	} else {
		m.list, cmd = m.list.Update(msg)
	}
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.showingAnswer {
		return docStyle.Render(m.answer.View())
	}
	view := m.list.View()
	if m.err != nil {
		view += "\n" + errorStyle.Render("refresh failed: "+m.err.Error())
	}
	return docStyle.Render(view)
}

func renderExchange(ex db.Exchange, width int) string {
	body := lipgloss.NewStyle()
	if width > 4 {
		body = body.Width(width - 4)
	}

	answer := ex.Answer
	if answer == "" {
		answer = "(no answer, " + ex.Status + ")"
	}

	return strings.Join([]string{
		labelStyle.Render("Asked by ") + ex.UserID + labelStyle.Render(" via ") + ex.Source,
		labelStyle.Render("At ") + ex.CreatedAt.Local().Format(time.DateTime) +
			labelStyle.Render(" in ") + (time.Duration(ex.DurationMs) * time.Millisecond).String(),
		"",
		questionStyle.Render(body.Render(ex.Question)),
		"",
		body.Render(answer),
	}, "\n")
}

var (
	docStyle      = lipgloss.NewStyle().Margin(1, 2)
	titleStyle    = lipgloss.NewStyle().MarginLeft(2)
	labelStyle    = lipgloss.NewStyle().Faint(true)
	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d4ff"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5555"))
)
