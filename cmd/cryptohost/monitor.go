package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasi-crypto/cryptoctx"
	"github.com/wippyai/wasi-crypto/resource"
)

const maxMonitorEvents = 12

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB")).
			Width(14)

	countStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#98FB98"))

	createdStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	droppedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB86C"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type eventMsg resource.Event

type guestDoneMsg struct {
	err error
}

// programObserver forwards table events into the running program.
type programObserver struct {
	p *tea.Program
}

func (o *programObserver) OnResourceEvent(e resource.Event) {
	o.p.Send(eventMsg(e))
}

type monitorModel struct {
	err     error
	live    map[resource.Kind]int
	title   string
	events  []resource.Event
	spinner spinner.Model
	total   int
	done    bool
}

func newMonitorModel(title string, stats cryptoctx.Stats) *monitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return &monitorModel{
		title:   title,
		spinner: s,
		live: map[resource.Kind]int{
			resource.KindOptions:     stats.Options,
			resource.KindArrayOutput: stats.ArrayOutputs,
			resource.KindKeyManager:  stats.KeyManagers,
		},
	}
}

func (m *monitorModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case eventMsg:
		e := resource.Event(msg)
		m.live[e.Kind] = e.Live
		m.total++
		m.events = append(m.events, e)
		if len(m.events) > maxMonitorEvents {
			m.events = m.events[len(m.events)-maxMonitorEvents:]
		}

	case guestDoneMsg:
		m.done = true
		m.err = msg.err

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *monitorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Crypto Host"))
	b.WriteString(" ")
	b.WriteString(m.title)
	b.WriteString("\n\n")

	for _, kind := range []resource.Kind{resource.KindOptions, resource.KindArrayOutput, resource.KindKeyManager} {
		b.WriteString(kindStyle.Render(string(kind)))
		b.WriteString(countStyle.Render(fmt.Sprintf("%d", m.live[kind])))
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("\nRecent events (%d total):\n", m.total))
	for _, e := range m.events {
		line := fmt.Sprintf("  %-8s %-13s #%d", e.Type, e.Kind, e.Handle)
		if e.Type == resource.EventCreated {
			b.WriteString(createdStyle.Render(line))
		} else {
			b.WriteString(droppedStyle.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case !m.done:
		b.WriteString(m.spinner.View())
		b.WriteString(" guest running\n")
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	default:
		b.WriteString(countStyle.Render("guest finished"))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("q quit"))
	return b.String()
}

// runMonitor runs guest in the background while a live view of the
// context's handle tables owns the terminal. Quitting the view cancels
// the guest and waits for it to return.
func runMonitor(ctx context.Context, c *crypto, title string, guest func(context.Context) error, opts ...tea.ProgramOption) error {
	p := tea.NewProgram(newMonitorModel(title, c.cc.Stats()), opts...)

	obs := &programObserver{p: p}
	c.cc.Subscribe(obs)
	defer c.cc.Unsubscribe(obs)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Send(guestDoneMsg{err: guest(ctx)})
	}()

	final, err := p.Run()
	cancel()
	<-done
	if err != nil {
		return err
	}
	if m, ok := final.(*monitorModel); ok {
		return m.err
	}
	return nil
}
