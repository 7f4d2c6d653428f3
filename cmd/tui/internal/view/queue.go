package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/instavisa/instavisa/internal/application"
)

type queueState int

const (
	queueStateBrowse queueState = iota
	queueStateNote
)

type QueueModel struct {
	CommonModel
	appService *application.Service
	actor      application.Actor

	state queueState
	table table.Model
	apps  []*application.Application
	form  *huh.Form

	// Filter cycling
	statusFilterIdx  int
	paymentFilterIdx int

	filter  application.ListFilter
	loading bool
	err     error
	status  string

	// Form bindings
	formNote string
}

func NewQueueModel(appSvc *application.Service, actor application.Actor) QueueModel {
	columns := []table.Column{
		{Title: "Number", Width: 14},
		{Title: "Status", Width: 20},
		{Title: "Payment", Width: 12},
		{Title: "Amount", Width: 10},
		{Title: "eSIM", Width: 12},
		{Title: "Submitted", Width: 12},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return QueueModel{
		appService: appSvc,
		actor:      actor,
		table:      t,
		filter:     application.ListFilter{},
	}
}

func (m QueueModel) Title() string { return "Application Queue" }
func (m QueueModel) ShortHelp() string {
	if m.state == queueStateNote {
		return "Navigate form | Esc: cancel"
	}
	return "Esc: back | n: add note | s: status filter | p: payment filter | r: refresh"
}

func (m QueueModel) Init() tea.Cmd {
	return m.loadAppsCmd()
}

func (m QueueModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadQueueMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.apps = msg.apps
		m.status = ""
		m.refreshTable()
		return m, nil

	case noteSaveMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error saving note: %v", msg.err)
		}
		m.state = queueStateBrowse
		m.form = nil
		m.table.Focus()
		return m, m.loadAppsCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil
	}

	switch m.state {
	case queueStateBrowse:
		return m.updateBrowse(msg)
	case queueStateNote:
		return m.updateNote(msg)
	}

	return m, nil
}

func (m QueueModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadAppsCmd()
		case "n":
			return m.enterNoteMode()
		case "s":
			m.statusFilterIdx = (m.statusFilterIdx + 1) % 6
			m.applyFilter()
			return m, m.loadAppsCmd()
		case "p":
			m.paymentFilterIdx = (m.paymentFilterIdx + 1) % 4
			m.applyFilter()
			return m, m.loadAppsCmd()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m QueueModel) enterNoteMode() (tea.Model, tea.Cmd) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.apps) {
		return m, nil
	}

	m.formNote = ""

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("note").
				Title("Internal Note").
				Value(&m.formNote).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("note cannot be empty")
					}
					return nil
				}),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = queueStateNote
	m.table.Blur()
	return m, m.form.Init()
}

func (m QueueModel) updateNote(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if keyMsg.Type == tea.KeyEsc {
			m.state = queueStateBrowse
			m.form = nil
			m.table.Focus()
			return m, nil
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	return m, m.saveNoteCmd()
}

func (m QueueModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading applications...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(fmt.Sprintf("Error: %v", m.err))
	}

	statusLabels := []string{"All", "Pending", "Under Review", "Docs Required", "Sent to Embassy", "Approved"}
	paymentLabels := []string{"All", "Pending", "Processing", "Completed"}

	header := fmt.Sprintf(
		"Filter: [s] Status: %s | [p] Payment: %s",
		activeStyle(statusLabels[m.statusFilterIdx]),
		activeStyle(paymentLabels[m.paymentFilterIdx]),
	)

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		tableView,
	)

	if m.state == queueStateNote && m.form != nil {
		idx := m.table.Cursor()
		number := ""
		if idx >= 0 && idx < len(m.apps) {
			number = m.apps[idx].Number
		}

		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(48).
			Render(
				fmt.Sprintf("Add Note\n\nApplication: %s\n\n%s", number, m.form.View()),
			)

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func activeStyle(s string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Render(s)
}

func (m *QueueModel) applyFilter() {
	switch m.statusFilterIdx {
	case 1:
		m.filter.Status = new(application.StatusPending)
	case 2:
		m.filter.Status = new(application.StatusUnderReview)
	case 3:
		m.filter.Status = new(application.StatusDocumentsRequired)
	case 4:
		m.filter.Status = new(application.StatusSentToEmbassy)
	case 5:
		m.filter.Status = new(application.StatusApproved)
	default:
		m.filter.Status = nil
	}

	switch m.paymentFilterIdx {
	case 1:
		m.filter.PaymentStatus = new(application.PaymentPending)
	case 2:
		m.filter.PaymentStatus = new(application.PaymentProcessing)
	case 3:
		m.filter.PaymentStatus = new(application.PaymentCompleted)
	default:
		m.filter.PaymentStatus = nil
	}
}

func (m *QueueModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.apps))
	for _, app := range m.apps {
		submitted := ""
		if app.SubmittedAt != nil {
			submitted = FormatDate(*app.SubmittedAt)
		}

		esim := "-"
		if app.ESIM.Selected {
			esim = string(app.ESIM.Status)
		}

		rows = append(rows, table.Row{
			app.Number,
			string(app.Status),
			string(app.PaymentStatus),
			FormatAmount(app.PaymentAmount),
			esim,
			submitted,
		})
	}
	m.table.SetRows(rows)
}

// Messages

type loadQueueMsg struct {
	apps []*application.Application
	err  error
}

func (m QueueModel) loadAppsCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		apps, err := m.appService.List(ctx, m.actor, m.filter)
		return loadQueueMsg{apps: apps, err: err}
	}
}

type noteSaveMsg struct {
	err error
}

func (m QueueModel) saveNoteCmd() tea.Cmd {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.apps) {
		return nil
	}

	app := m.apps[idx]
	note := m.formNote

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		_, err := m.appService.AppendAdminNote(ctx, m.actor, app.ID, note)
		return noteSaveMsg{err: err}
	}
}
