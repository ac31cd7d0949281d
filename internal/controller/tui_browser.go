package controller

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	labelWidth  = 24
	scrollPause = 5
	marqueeGap  = "   "
	ellipsis    = "…"
)

var (
	rowLabelStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true).Width(labelWidth)
	rowDetailStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	selectedLabelStyle  = rowLabelStyle.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	selectedDetailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
)

// rowDelegate draws a table row on one line: the first cell as a label, the
// rest clipped, or scrolling when the row is selected. tick counts browser
// ticks since the selection last moved.
type rowDelegate struct {
	tick int
}

func (rowDelegate) Height() int                         { return 1 }
func (rowDelegate) Spacing() int                        { return 0 }
func (rowDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }

func (d rowDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	row, ok := item.(rowItem)
	if !ok {
		return
	}

	width := m.Width() - labelWidth - 2
	labelStyle, detailStyle := rowLabelStyle, rowDetailStyle
	detail := clipCells(row.detail, width)

	if index == m.Index() {
		labelStyle, detailStyle = selectedLabelStyle, selectedDetailStyle
		detail = marquee(row.detail, width, d.tick)
	}

	_, _ = io.WriteString(w, labelStyle.Render(clipCells(row.label, labelWidth))+"  "+detailStyle.Render(detail))
}

// marquee clips text to width cells while tick < scrollPause, then rotates it
// one rune per tick.
func marquee(text string, width, tick int) string {
	if width <= 0 {
		return ""
	}

	if lipgloss.Width(text) <= width {
		return text
	}

	if tick < scrollPause {
		return clipCells(text, width)
	}

	loop := []rune(text + marqueeGap)
	start := (tick - scrollPause) % len(loop)
	rotated := string(loop[start:]) + string(loop[:start])

	return takeCells(rotated, width)
}

// clipCells shortens text to width cells, marking the cut with an ellipsis.
func clipCells(text string, width int) string {
	switch {
	case width <= 0:
		return ""
	case lipgloss.Width(text) <= width:
		return text
	case width <= lipgloss.Width(ellipsis):
		return ellipsis
	}

	return takeCells(text, width-lipgloss.Width(ellipsis)) + ellipsis
}

// takeCells returns the longest prefix of text at most width cells wide.
func takeCells(text string, width int) string {
	var b strings.Builder

	used := 0

	for _, r := range text {
		cells := lipgloss.Width(string(r))
		if used+cells > width {
			break
		}

		b.WriteRune(r)
		used += cells
	}

	return b.String()
}

// browserModel pages through a long table with filtering.
type browserModel struct {
	width        int
	height       int
	title        string
	header       []string
	footer       []string
	rowList      list.Model
	delegate     rowDelegate
	total        int
	rendered     bool
	animOffset   int
	lastSelected int
}

func newBrowserModel(table tableData) browserModel {
	delegate := rowDelegate{}
	rowList := list.New([]list.Item{}, delegate, 80, 20)
	rowList.SetShowPagination(false)
	rowList.SetShowFilter(true)
	rowList.SetShowHelp(false)
	rowList.SetShowTitle(false)
	rowList.SetShowStatusBar(false)
	rowList.FilterInput.Placeholder = "Filter rows…"

	model := browserModel{
		rowList:      rowList,
		delegate:     delegate,
		lastSelected: -1,
	}

	return model.handleTableMsg(tableMsg{table: table})
}

func (m browserModel) Init() tea.Cmd {
	return tea.Tick(time.Second/2, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.rowList.SetWidth(m.width)

	case tickMsg:
		if m.rowList.FilterState() != list.Filtering && m.rendered {
			m.animOffset++
			m.delegate.tick = m.animOffset
			m.rowList.SetDelegate(m.delegate)

			return m, tea.Tick(time.Millisecond*150, func(t time.Time) tea.Msg {
				return tickMsg(t)
			})
		}

		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		default:
			var newList list.Model

			newList, cmd = m.rowList.Update(msg)
			m.rowList = newList

			if m.rowList.Index() != m.lastSelected {
				m.lastSelected = m.rowList.Index()
				m.animOffset = 0
				m.delegate.tick = 0
				m.rowList.SetDelegate(m.delegate)
			}

			return m, cmd
		}

	case tableMsg:
		m = m.handleTableMsg(msg)
	}

	return m, cmd
}

func (m browserModel) handleTableMsg(msg tableMsg) browserModel {
	m.title = msg.table.title
	m.header = msg.table.header
	m.footer = msg.table.footer
	m.total = len(msg.table.rows)

	items := make([]list.Item, 0, len(msg.table.rows))
	for _, row := range msg.table.rows {
		if len(row) == 0 {
			continue
		}

		items = append(items, rowItem{label: row[0], detail: strings.Join(row[1:], "  ")})
	}

	m.rowList.SetItems(items)
	m.rendered = true

	if len(items) > 0 && m.lastSelected == -1 {
		m.lastSelected = 0
	}

	return m
}

func (m browserModel) View() string {
	if !m.rendered {
		return "Loading…\n"
	}

	titleStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("205")).
		Bold(true).
		Padding(1, 0, 0, 2)

	summaryStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252")).
		Padding(0, 0, 1, 2)

	accentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	title := titleStyle.Render("📜 " + m.title)

	summaryText := fmt.Sprintf("Rows: %s", accentStyle.Render(fmt.Sprintf("%d", m.total)))
	if len(m.footer) > 0 {
		summaryText += "   " + strings.TrimSpace(strings.Join(m.footer, " "))
	}

	summary := summaryStyle.Render(summaryText)

	table := m.renderTable()

	footerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Align(lipgloss.Center).
		Width(m.width)

	footer := footerStyle.Render("↑/k up • ↓/j down • g/G top/bottom • / filter • q quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		summary,
		table,
		footer,
	)
}

func (m browserModel) renderTable() string {
	// title (2) + summary (2) + footer (1) + border (2) + header (2)
	listHeight := m.height - 9
	if listHeight < 5 {
		listHeight = 5
	}

	// margin (2) + border (2) + padding (2)
	listWidth := m.width - 6

	m.rowList.SetHeight(listHeight)
	m.rowList.SetWidth(listWidth)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Bold(true).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("8")).
		Width(listWidth)

	label, detail := "", ""
	if len(m.header) > 0 {
		label = m.header[0]
		detail = strings.Join(m.header[1:], "  ")
	}

	headers := headerStyle.Render(fmt.Sprintf("%-*s  %s", labelWidth, label, detail))

	tableContainer := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("6")).
		Margin(0, 1).
		Padding(0, 1)

	return tableContainer.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			headers,
			m.rowList.View(),
		),
	)
}
