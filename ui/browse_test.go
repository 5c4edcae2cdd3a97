package ui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"axiom/db"
)

func exchange(id, question string) db.Exchange {
	return db.Exchange{
		ID:        id,
		UserID:    "ada",
		Source:    "voice",
		Status:    "ok",
		Question:  question,
		Answer:    "answer to " + question,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestRefreshAddsNewExchangesOnTop(t *testing.T) {
	m := *NewBrowser([]db.Exchange{exchange("a", "first")}, nil, 0)
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})

	m = update(t, m, refreshMsg{exchanges: []db.Exchange{
		exchange("c", "third"),
		exchange("b", "second"),
		exchange("a", "first"),
	}})

	items := m.list.Items()
	if len(items) != 3 {
		t.Fatalf("got %d items", len(items))
	}
	var order []string
	for _, it := range items {
		order = append(order, it.(exchangeItem).exchange.ID)
	}
	if strings.Join(order, "") != "cba" {
		t.Errorf("order = %v", order)
	}
}

func TestEnterShowsAnswer(t *testing.T) {
	m := *NewBrowser([]db.Exchange{exchange("a", "what is go")}, nil, 0)
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.showingAnswer {
		t.Fatal("enter should open the answer")
	}
	if !strings.Contains(m.View(), "answer to what is go") {
		t.Errorf("answer not rendered:\n%s", m.View())
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.showingAnswer {
		t.Error("esc should go back to the list")
	}
}

func TestQuit(t *testing.T) {
	m := *NewBrowser(nil, nil, 0)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil || !next.(Model).quitting {
		t.Error("q should quit")
	}
}

func TestPollFetches(t *testing.T) {
	fetched := make(chan struct{}, 1)
	fetch := func(context.Context) ([]db.Exchange, error) {
		fetched <- struct{}{}
		return []db.Exchange{exchange("z", "new")}, nil
	}
	m := *NewBrowser(nil, fetch, time.Millisecond)

	msg := m.poll()()
	refresh, ok := msg.(refreshMsg)
	if !ok || len(refresh.exchanges) != 1 {
		t.Fatalf("poll returned %#v", msg)
	}
	select {
	case <-fetched:
	default:
		t.Error("fetch not called")
	}
}
