package view

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/instavisa/instavisa/internal/application"
)

// reviewQueues are the status buckets an operator can work through.
var reviewQueues = []application.Status{
	application.StatusPending,
	application.StatusUnderReview,
	application.StatusDocumentsRequired,
	application.StatusSentToEmbassy,
	application.StatusEmbassyApproved,
	application.StatusEmbassyRejected,
}

type ReviewModel struct {
	CommonModel
	appService *application.Service
	actor      application.Actor

	state ReviewState

	queue      []*application.Application
	currentApp *application.Application

	// Legal next statuses for the current application.
	targets   []application.Status
	targetIdx int

	remarksInput textinput.Model

	// Queue selection
	selectedQueue int

	status     string
	loading    bool
	totalCount int
}

type ReviewState int

const (
	StateSelectQueue ReviewState = iota
	StateReviewing
)

func NewReviewModel(appSvc *application.Service, actor application.Actor) ReviewModel {
	ri := textinput.New()
	ri.Placeholder = "Remarks (recorded in the audit trail)"
	ri.Width = 50

	return ReviewModel{
		appService:   appSvc,
		actor:        actor,
		remarksInput: ri,
		state:        StateSelectQueue,
		status:       "Select a queue to review",
	}
}

func (m ReviewModel) Title() string { return "Review Applications" }
func (m ReviewModel) ShortHelp() string {
	if m.state == StateReviewing {
		return "Up/Down: pick next status | Enter: apply | Tab: skip | Esc: back"
	}
	return "Up/Down: pick queue | Enter: start | Esc: back"
}

func (m ReviewModel) Init() tea.Cmd {
	return nil
}

func (m ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.loading {
			return m, nil
		}

		switch msg.Type {
		case tea.KeyEsc:
			if m.state == StateReviewing {
				m.state = StateSelectQueue
				m.currentApp = nil
				m.remarksInput.Blur()
				m.status = "Select a queue to review"

				return m, nil
			}

			return m, Back

		case tea.KeyEnter:
			if m.state == StateSelectQueue {
				m.loading = true
				m.state = StateReviewing

				return m, m.loadQueueCmd()
			}

			if m.state == StateReviewing && m.currentApp != nil && len(m.targets) > 0 {
				return m, m.transitionAndNextCmd(m.targets[m.targetIdx], m.remarksInput.Value())
			}

		case tea.KeyUp, tea.KeyDown:
			if m.state == StateSelectQueue {
				if msg.Type == tea.KeyUp {
					if m.selectedQueue > 0 {
						m.selectedQueue--
					}
				} else if m.selectedQueue < len(reviewQueues)-1 {
					m.selectedQueue++
				}

				return m, nil
			}

			if m.state == StateReviewing && len(m.targets) > 0 {
				if msg.Type == tea.KeyUp {
					m.targetIdx = (m.targetIdx + len(m.targets) - 1) % len(m.targets)
				} else {
					m.targetIdx = (m.targetIdx + 1) % len(m.targets)
				}

				return m, nil
			}

		case tea.KeyTab:
			// Skip without transitioning.
			if m.state == StateReviewing && m.currentApp != nil {
				m.nextApp()
				return m, textinput.Blink
			}
		}

	case loadReviewQueueMsg:
		m.loading = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Error loading queue: %v", msg.err)
			break
		}

		m.queue = msg.apps
		m.totalCount = len(m.queue)

		if len(m.queue) > 0 {
			m.nextApp()
			return m, textinput.Blink
		}

		m.status = "Queue is empty."

	case transitionResultMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			break
		}

		if len(m.queue) > 0 {
			m.nextApp()
			return m, textinput.Blink
		}

		m.currentApp = nil
		m.status = "Queue cleared!"
		m.remarksInput.SetValue("")
	}

	if m.state == StateReviewing {
		m.remarksInput, cmd = m.remarksInput.Update(msg)
	}

	return m, cmd
}

func (m ReviewModel) View() string {
	if m.state == StateSelectQueue {
		s := "Select Queue:\n\n"

		for i, q := range reviewQueues {
			cursor := " "
			if m.selectedQueue == i {
				cursor = ">"
			}

			s += fmt.Sprintf("%s %s\n", cursor, q)
		}

		return lipgloss.NewStyle().Padding(2).Render(s)
	}

	content := ""
	if m.loading {
		content = "Loading queue..."
	} else if m.currentApp != nil {
		app := m.currentApp

		submitted := "-"
		if app.SubmittedAt != nil {
			submitted = FormatDate(*app.SubmittedAt)
		}

		esim := "not selected"
		if app.ESIM.Selected {
			esim = string(app.ESIM.Status)
		}

		info := fmt.Sprintf(
			"Number:    %s\nStatus:    %s\nPayment:   %s (%s INR)\nSubmitted: %s\neSIM:      %s\nNotes:     %d\n",
			app.Number,
			app.Status,
			app.PaymentStatus,
			FormatAmount(app.PaymentAmount),
			submitted,
			esim,
			len(app.Notes),
		)

		targets := "Next status:\n"
		for i, target := range m.targets {
			cursor := " "
			if m.targetIdx == i {
				cursor = ">"
			}

			targets += fmt.Sprintf("  %s %s\n", cursor, target)
		}

		if len(m.targets) == 0 {
			targets = "No transitions available.\n"
		}

		content = fmt.Sprintf(
			"%s\n%s\n%s\n%s\n\n(Enter to apply, Tab to skip, Esc to back)",
			m.status, info, targets, m.remarksInput.View(),
		)
	} else {
		content = m.status + "\n\n(Esc to back)"
	}

	return lipgloss.NewStyle().Padding(2).Render(content)
}

type loadReviewQueueMsg struct {
	apps []*application.Application
	err  error
}

func (m ReviewModel) loadQueueCmd() tea.Cmd {
	queue := reviewQueues[m.selectedQueue]

	return func() tea.Msg {
		filter := application.ListFilter{Status: &queue}

		apps, err := m.appService.List(context.Background(), m.actor, filter)

		return loadReviewQueueMsg{apps: apps, err: err}
	}
}

func (m *ReviewModel) nextApp() {
	if len(m.queue) == 0 {
		m.currentApp = nil
		m.status = "Queue cleared! Nothing left to review."
		m.remarksInput.Blur()

		return
	}

	app := m.queue[0]
	m.queue = m.queue[1:]
	m.currentApp = app

	currentIdx := m.totalCount - len(m.queue)
	m.status = fmt.Sprintf("Reviewing %d/%d", currentIdx, m.totalCount)

	m.targets = legalTargets(app.Status)
	m.targetIdx = 0

	m.remarksInput.SetValue("")
	m.remarksInput.Focus()
}

func legalTargets(from application.Status) []application.Status {
	all := []application.Status{
		application.StatusUnderReview,
		application.StatusDocumentsRequired,
		application.StatusDocumentsApproved,
		application.StatusSentToEmbassy,
		application.StatusEmbassyApproved,
		application.StatusEmbassyRejected,
		application.StatusApproved,
		application.StatusRejected,
	}

	var targets []application.Status
	for _, to := range all {
		if application.CanTransition(from, to) {
			targets = append(targets, to)
		}
	}

	return targets
}

type transitionResultMsg struct {
	err error
}

func (m ReviewModel) transitionAndNextCmd(target application.Status, remarks string) tea.Cmd {
	appID := m.currentApp.ID

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := m.appService.TransitionStatus(ctx, m.actor, appID, target, remarks)

		return transitionResultMsg{err: err}
	}
}
