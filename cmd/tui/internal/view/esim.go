package view

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/instavisa/instavisa/internal/application"
)

type ESIMModel struct {
	CommonModel
	appService *application.Service
	actor      application.Actor

	queue      []*application.Application
	currentApp *application.Application

	loading    bool
	status     string
	totalCount int
}

func NewESIMModel(appSvc *application.Service, actor application.Actor) ESIMModel {
	return ESIMModel{
		appService: appSvc,
		actor:      actor,
		status:     "Load eSIM queue...",
	}
}

func (m ESIMModel) Title() string     { return "eSIM Fulfillment" }
func (m ESIMModel) ShortHelp() string { return "a: advance | c: cancel | Tab: skip | Esc: back" }

func (m ESIMModel) Init() tea.Cmd {
	m.loading = true
	return m.loadQueueCmd()
}

func (m ESIMModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, Back
		case "a":
			if m.currentApp != nil {
				if next, ok := nextESIMStep(m.currentApp.ESIM.Status); ok {
					return m, m.updateESIMCmd(next)
				}
			}
		case "c":
			if m.currentApp != nil {
				return m, m.updateESIMCmd(application.ESIMCancelled)
			}
		case "tab":
			if m.currentApp != nil {
				m.nextApp()
			}
		}

	case loadESIMQueueMsg:
		m.loading = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}

		m.queue = msg.apps
		m.totalCount = len(m.queue)
		m.nextApp()

	case esimActionMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error updating: %v", msg.err)
			break
		}

		m.nextApp()
	}

	return m, nil
}

func (m ESIMModel) View() string {
	if m.loading {
		return "Loading eSIM queue..."
	}

	if m.currentApp == nil {
		if m.totalCount == 0 {
			return lipgloss.NewStyle().Padding(2).Render("No eSIMs waiting for fulfillment.\n\n(Esc to back)")
		}

		return lipgloss.NewStyle().Padding(2).Render(m.status + "\n\n(Esc to back)")
	}

	app := m.currentApp

	advance := "no further step"
	if next, ok := nextESIMStep(app.ESIM.Status); ok {
		advance = string(next)
	}

	info := fmt.Sprintf(
		"Number: %s\nVisa:   %s\neSIM:   %s\n",
		app.Number,
		app.Status,
		app.ESIM.Status,
	)

	return lipgloss.NewStyle().Padding(2).Render(
		fmt.Sprintf("eSIM Queue (%d remaining)\n\n%s\n(a: advance to %s, c: cancel, Tab to skip, Esc to back)",
			len(m.queue)+1, info, advance),
	)
}

// nextESIMStep is the single forward step in the fulfillment queue.
func nextESIMStep(s application.ESIMStatus) (application.ESIMStatus, bool) {
	switch s {
	case application.ESIMPending:
		return application.ESIMProcessing, true
	case application.ESIMProcessing:
		return application.ESIMActivated, true
	case application.ESIMActivated:
		return application.ESIMDelivered, true
	default:
		return "", false
	}
}

func (m *ESIMModel) nextApp() {
	if len(m.queue) == 0 {
		m.currentApp = nil
		m.status = "All done!"

		return
	}

	m.currentApp = m.queue[0]
	m.queue = m.queue[1:]
}

type loadESIMQueueMsg struct {
	apps []*application.Application
	err  error
}

func (m ESIMModel) loadQueueCmd() tea.Cmd {
	return func() tea.Msg {
		// Only paid applications enter fulfillment.
		filter := application.ListFilter{PaymentStatus: new(application.PaymentCompleted)}

		apps, err := m.appService.List(context.Background(), m.actor, filter)
		if err != nil {
			return loadESIMQueueMsg{err: err}
		}

		pending := make([]*application.Application, 0, len(apps))
		for _, app := range apps {
			if app.ESIM.Selected && !app.ESIM.Status.Terminal() {
				pending = append(pending, app)
			}
		}

		return loadESIMQueueMsg{apps: pending}
	}
}

type esimActionMsg struct {
	err error
}

func (m ESIMModel) updateESIMCmd(target application.ESIMStatus) tea.Cmd {
	appID := m.currentApp.ID

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := m.appService.UpdateESIM(ctx, m.actor, appID, target)

		return esimActionMsg{err: err}
	}
}
