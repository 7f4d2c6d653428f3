package main

import (
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/instavisa/instavisa/cmd/tui/internal/view"
	"github.com/instavisa/instavisa/internal/application"
	appStore "github.com/instavisa/instavisa/internal/application/store"
	"github.com/instavisa/instavisa/internal/config"
	"github.com/instavisa/instavisa/internal/database"
	"github.com/instavisa/instavisa/internal/notify"
)

type model struct {
	appService *application.Service
	actor      application.Actor

	currentView View

	queueView  view.QueueModel
	reviewView view.ReviewModel
	esimView   view.ESIMModel
}

type View int

const (
	ViewMenu   View = 0
	ViewQueue  View = 1
	ViewReview View = 2
	ViewESIM   View = 3
)

func initialModel() model {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	adminID, err := uuid.Parse(cfg.Console.AdminID)
	if err != nil {
		slog.Error("CONSOLE_ADMIN_ID must be the operator's user id", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	mailer := notify.NewEmailSink(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)

	appSvc := application.NewService(appStore.New(db), nil, mailer, nil)
	actor := application.Actor{ID: adminID, Role: application.RoleAdmin}

	return model{
		appService:  appSvc,
		actor:       actor,
		currentView: ViewMenu,
		queueView:   view.NewQueueModel(appSvc, actor),
		reviewView:  view.NewReviewModel(appSvc, actor),
		esimView:    view.NewESIMModel(appSvc, actor),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.currentView == ViewMenu {
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewQueue
				m.queueView = view.NewQueueModel(m.appService, m.actor)

				return m, m.queueView.Init()
			case "2":
				m.currentView = ViewReview
				m.reviewView = view.NewReviewModel(m.appService, m.actor)

				return m, m.reviewView.Init()
			case "3":
				m.currentView = ViewESIM
				m.esimView = view.NewESIMModel(m.appService, m.actor)

				return m, m.esimView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewQueue:
		var newModel tea.Model
		newModel, cmd = m.queueView.Update(msg)
		m.queueView = newModel.(view.QueueModel)
	case ViewReview:
		var newModel tea.Model
		newModel, cmd = m.reviewView.Update(msg)
		m.reviewView = newModel.(view.ReviewModel)
	case ViewESIM:
		var newModel tea.Model
		newModel, cmd = m.esimView.Update(msg)
		m.esimView = newModel.(view.ESIMModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"InstaVisa Operator Console\n\n" +
				"1. Application Queue\n" +
				"2. Review Applications\n" +
				"3. eSIM Fulfillment\n\n" +
				"q. Quit",
		)
	case ViewQueue:
		return m.queueView.View()
	case ViewReview:
		return m.reviewView.View()
	case ViewESIM:
		return m.esimView.View()
	}

	return "Unknown View"
}

func main() {
	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		slog.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}
}
