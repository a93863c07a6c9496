package main

import (
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/resguard/guard"
	"github.com/wippyai/resguard/registry"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	leakedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type row struct {
	name      string
	trackedAt time.Time
	handle    registry.Handle
}

type watchModel struct {
	err      error
	reg      *registry.Registry
	guards   map[registry.Handle]*guard.Guard[*scratch]
	eventCh  chan registry.Event
	input    textinput.Model
	rows     []row
	events   []string
	selected int
	adding   bool
	next     int
}

type eventMsg registry.Event

type gcTickMsg time.Time

// chanObserver forwards registry events into the TUI's event loop.
// Leak events arrive from the runtime's cleanup goroutine, so the
// channel is buffered and drops when the UI falls behind.
type chanObserver struct {
	ch chan registry.Event
}

func (o *chanObserver) OnGuardEvent(e registry.Event) {
	select {
	case o.ch <- e:
	default:
	}
}

func newWatchModel() *watchModel {
	ti := textinput.New()
	ti.Placeholder = "resource name"
	ti.Prompt = "name: "
	ti.Width = 40

	m := &watchModel{
		reg:     registry.New(),
		guards:  make(map[registry.Handle]*guard.Guard[*scratch]),
		eventCh: make(chan registry.Event, 64),
		input:   ti,
	}
	m.reg.Subscribe(&chanObserver{ch: m.eventCh})
	return m
}

func runInteractive() error {
	p := tea.NewProgram(newWatchModel())
	_, err := p.Run()
	return err
}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent, gcTick())
}

func (m *watchModel) waitForEvent() tea.Msg {
	return eventMsg(<-m.eventCh)
}

// gcTick forces periodic collection so leaked guards surface while the
// demo is on screen.
func gcTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return gcTickMsg(t)
	})
}

func (m *watchModel) acquire(name string) {
	s, err := newScratch()
	if err != nil {
		m.err = err
		return
	}
	g := guard.Acquire(s, (*scratch).release,
		guard.WithName(name),
		guard.WithRegistry(m.reg))
	m.guards[g.Handle()] = g
	m.refresh()
}

func (m *watchModel) refresh() {
	m.rows = m.rows[:0]
	m.reg.Each(func(h registry.Handle, e registry.Entry) bool {
		m.rows = append(m.rows, row{
			handle:    h,
			name:      e.Name,
			trackedAt: e.TrackedAt,
		})
		return true
	})
	sort.Slice(m.rows, func(i, j int) bool { return m.rows[i].handle < m.rows[j].handle })
	if m.selected >= len(m.rows) {
		m.selected = len(m.rows) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.adding {
			switch msg.String() {
			case "enter":
				name := m.input.Value()
				if name == "" {
					name = fmt.Sprintf("scratch-%d", m.next)
					m.next++
				}
				m.acquire(name)
				m.input.Reset()
				m.input.Blur()
				m.adding = false
			case "esc":
				m.input.Reset()
				m.input.Blur()
				m.adding = false
			default:
				var cmd tea.Cmd
				m.input, cmd = m.input.Update(msg)
				return m, cmd
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "q":
			if err := m.reg.Close(); err != nil {
				m.err = err
			}
			return m, tea.Quit

		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.selected < len(m.rows)-1 {
				m.selected++
			}

		case "a":
			m.adding = true
			m.input.Focus()
			return m, textinput.Blink

		case "r":
			if m.selected < len(m.rows) {
				h := m.rows[m.selected].handle
				if g, ok := m.guards[h]; ok {
					if err := g.Release(); err != nil {
						m.err = err
					}
					delete(m.guards, h)
				}
				m.refresh()
			}

		case "l":
			// Drop our reference and let the fallback path find it.
			if m.selected < len(m.rows) {
				delete(m.guards, m.rows[m.selected].handle)
			}
		}

	case eventMsg:
		m.events = append(m.events, formatEvent(registry.Event(msg)))
		if len(m.events) > 8 {
			m.events = m.events[len(m.events)-8:]
		}
		m.refresh()
		return m, m.waitForEvent

	case gcTickMsg:
		runtime.GC()
		m.refresh()
		return m, gcTick()
	}

	return m, nil
}

func formatEvent(e registry.Event) string {
	return fmt.Sprintf("%-8s handle=%d %s", e.Type, e.Handle, e.Name)
}

func (m *watchModel) View() string {
	s := titleStyle.Render("guardwatch") + "\n\n"

	if len(m.rows) == 0 {
		s += helpStyle.Render("no live guards") + "\n"
	}
	for i, r := range m.rows {
		line := fmt.Sprintf("%3d  %s  %s",
			r.handle,
			nameStyle.Render(fmt.Sprintf("%-20s", r.name)),
			time.Since(r.trackedAt).Truncate(time.Second))
		if _, held := m.guards[r.handle]; !held {
			line += leakedStyle.Render("  (dropped, awaiting fallback)")
		}
		if i == m.selected {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		s += line + "\n"
	}

	if len(m.events) > 0 {
		s += "\n" + helpStyle.Render("events") + "\n"
		for _, e := range m.events {
			s += eventStyle.Render("  "+e) + "\n"
		}
	}

	if m.adding {
		s += "\n" + m.input.View() + "\n"
	}

	if m.err != nil {
		s += "\n" + leakedStyle.Render("error: "+m.err.Error()) + "\n"
	}

	s += "\n" + helpStyle.Render("a: acquire • r: release • l: leak • ↑/↓: select • q: quit")
	return s
}
