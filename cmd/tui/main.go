package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Colors for modern design
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	accentColor    = lipgloss.Color("#F59E0B") // Amber
	surfaceColor   = lipgloss.Color("#1F2937") // Dark gray
	textColor      = lipgloss.Color("#F3F4F6") // Light gray
	mutedColor     = lipgloss.Color("#9CA3AF") // Muted gray
	borderColor    = lipgloss.Color("#374151") // Border gray
)

// Styles
var (
	containerStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor)

	titleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true).
			Align(lipgloss.Center)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Background(surfaceColor).
			Padding(0, 1)

	sequenceStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Background(lipgloss.Color("#111827")).
			Padding(1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor)

	reviewedStyle   = lipgloss.NewStyle().Foreground(secondaryColor).Bold(true)
	unreviewedStyle = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(mutedColor)
)

// IsoformEntry mirrors the isoform objects written to database.json.
type IsoformEntry struct {
	Ordinal  string `json:"ordinal"`
	IsoID    string `json:"iso_id"`
	Sequence string `json:"sequence"`
}

// VariationEntry mirrors the variation objects written to database.json.
type VariationEntry struct {
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Kind        string   `json:"kind"`
	Replacement string   `json:"replacement,omitempty"`
	Isoforms    []string `json:"isoforms"`
}

// ProteinRecord mirrors one entry of database.json.
type ProteinRecord struct {
	Seqids      []string         `json:"seqids"`
	EntryName   string           `json:"entry_name"`
	Accession   string           `json:"accession"`
	Description string           `json:"description,omitempty"`
	Gene        string           `json:"gene,omitempty"`
	Organism    string           `json:"organism,omitempty"`
	Reviewed    bool             `json:"reviewed"`
	Length      int              `json:"length"`
	Sequence    string           `json:"sequence"`
	Isoforms    []IsoformEntry   `json:"isoforms,omitempty"`
	Variations  []VariationEntry `json:"variations,omitempty"`
}

type listItem struct {
	record ProteinRecord
}

func (i listItem) FilterValue() string {
	return i.record.Accession + " " + i.record.EntryName + " " + i.record.Gene
}

func (i listItem) Title() string {
	if i.record.Accession != "" {
		return i.record.Accession
	}
	return i.record.EntryName
}

func (i listItem) Description() string {
	status := unreviewedStyle.Render("unreviewed")
	if i.record.Reviewed {
		status = reviewedStyle.Render("reviewed")
	}
	return fmt.Sprintf("%s    %s    AA: %d    Isoforms: %d", i.record.EntryName, status, i.record.Length, len(i.record.Isoforms))
}

type mode int

const (
	modeSequence mode = iota
	modeIsoforms
	modeVariations
)

func (m mode) String() string {
	switch m {
	case modeSequence:
		return "🧬 Sequence"
	case modeIsoforms:
		return "🧪 Isoforms"
	case modeVariations:
		return "📝 Variations"
	default:
		return "Unknown"
	}
}

type model struct {
	list          list.Model
	records       []ProteinRecord
	currentMode   mode
	showHelp      bool
	width         int
	height        int
	totalRecords  int
	selectedIndex int
}

func loadRecords(path string) ([]ProteinRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []ProteinRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func newModel(records []ProteinRecord) model {
	items := make([]list.Item, len(records))
	for i, record := range records {
		items[i] = listItem{record: record}
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "UniProt Records"
	l.SetShowStatusBar(false)
	l.SetShowPagination(true)
	l.SetFilteringEnabled(true)

	return model{
		list:         l,
		records:      records,
		currentMode:  modeSequence,
		totalRecords: len(records),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

// cycleMode steps through the view modes in order, wrapping around.
func (m model) cycleMode() model {
	m.currentMode = (m.currentMode + 1) % 3
	return m
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Left panel takes 1/3 of the width
		listWidth := msg.Width / 3
		listHeight := msg.Height - 4 // Account for borders and status

		m.list.SetWidth(listWidth)
		m.list.SetHeight(listHeight)

		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "h":
			m.showHelp = !m.showHelp
			return m, nil

		case "tab":
			return m.cycleMode(), nil

		case "1":
			m.currentMode = modeSequence
			return m, nil

		case "2":
			m.currentMode = modeIsoforms
			return m, nil

		case "3":
			m.currentMode = modeVariations
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	m.selectedIndex = m.list.Index()
	return m, cmd
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelpModal()
	}

	leftPanel := m.renderLeftPanel()
	rightPanel := m.renderRightPanel()
	statusBar := m.renderStatusBar()

	main := lipgloss.JoinHorizontal(
		lipgloss.Top,
		leftPanel,
		rightPanel,
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		main,
		statusBar,
	)
}

func (m model) renderLeftPanel() string {
	listWidth := m.width / 3

	return containerStyle.
		Width(listWidth - 2). // Account for padding
		Height(m.height - 4). // Account for status bar
		Render(m.list.View())
}

// buildRightLines formats the detail panel content for a record under the
// current mode. Returned as lines so tests can inspect the layout.
func (m model) buildRightLines(record ProteinRecord) []string {
	wrapWidth := m.width*2/3 - 6
	if wrapWidth < 10 {
		wrapWidth = 10
	}

	var lines []string
	switch m.currentMode {
	case modeSequence:
		lines = append(lines, fmt.Sprintf("Primary sequence (%d aa):", len(record.Sequence)))
		lines = append(lines, wrapSequence(record.Sequence, wrapWidth)...)
	case modeIsoforms:
		if len(record.Isoforms) == 0 {
			return []string{"No isoforms annotated"}
		}
		for _, iso := range record.Isoforms {
			lines = append(lines, fmt.Sprintf("%s (isoform %s, %d aa):", iso.IsoID, iso.Ordinal, len(iso.Sequence)))
			lines = append(lines, wrapSequence(iso.Sequence, wrapWidth)...)
			lines = append(lines, "")
		}
	case modeVariations:
		if len(record.Variations) == 0 {
			return []string{"No sequence variations annotated"}
		}
		for _, v := range record.Variations {
			desc := fmt.Sprintf("%d..%d %s", v.Start, v.End, v.Kind)
			if v.Replacement != "" {
				desc += " -> " + v.Replacement
			}
			desc += "  (isoforms " + strings.Join(v.Isoforms, ", ") + ")"
			lines = append(lines, desc)
		}
	}
	return lines
}

func wrapSequence(seq string, width int) []string {
	var lines []string
	for i := 0; i < len(seq); i += width {
		end := i + width
		if end > len(seq) {
			end = len(seq)
		}
		lines = append(lines, seq[i:end])
	}
	return lines
}

func (m model) renderRightPanel() string {
	rightWidth := (m.width * 2) / 3

	if len(m.records) == 0 {
		return containerStyle.
			Width(rightWidth - 2).
			Height(m.height - 4).
			Render("No records available")
	}

	selectedItem := m.list.SelectedItem()
	if selectedItem == nil {
		return containerStyle.
			Width(rightWidth - 2).
			Height(m.height - 4).
			Render("No item selected")
	}

	record := selectedItem.(listItem).record

	header := titleStyle.Render(fmt.Sprintf("%s - %s", record.Accession, record.EntryName))

	status := unreviewedStyle.Render("unreviewed (TrEMBL)")
	if record.Reviewed {
		status = reviewedStyle.Render("reviewed (Swiss-Prot)")
	}
	meta := mutedStyle.Render("Gene: ") + record.Gene +
		mutedStyle.Render("    Organism: ") + record.Organism +
		mutedStyle.Render("    ") + status
	if record.Description != "" {
		meta += "\n" + mutedStyle.Render(record.Description)
	}

	content := sequenceStyle.
		Width(rightWidth - 6). // Account for padding and borders
		Render(strings.Join(m.buildRightLines(record), "\n"))

	panelContent := lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		meta,
		"",
		content,
	)

	return containerStyle.
		Width(rightWidth - 2).
		Height(m.height - 4).
		Render(panelContent)
}

func (m model) renderStatusBar() string {
	leftInfo := fmt.Sprintf("📊 %d/%d records", m.selectedIndex+1, m.totalRecords)
	centerInfo := fmt.Sprintf("Mode: %s", m.currentMode.String())
	rightInfo := "Press 'h' for help • 'q' to quit"

	totalUsed := len(leftInfo) + len(centerInfo) + len(rightInfo)
	spacing := m.width - totalUsed - 6 // Account for padding

	var statusContent string
	if spacing > 0 {
		leftSpacing := spacing / 2
		rightSpacing := spacing - leftSpacing

		statusContent = fmt.Sprintf("%s%s%s%s%s",
			leftInfo,
			strings.Repeat(" ", leftSpacing),
			centerInfo,
			strings.Repeat(" ", rightSpacing),
			rightInfo,
		)
	} else {
		// Fallback for narrow terminals
		statusContent = fmt.Sprintf("%s | %s", leftInfo, centerInfo)
	}

	return statusBarStyle.
		Width(m.width).
		Render(statusContent)
}

func (m model) renderHelpModal() string {
	helpContent := `🧬 UniProt Record Browser - Help

Navigation:
  ↑/↓, j/k     Navigate list
  /            Filter records
  Enter        Select record

View Modes:
  1            Show primary sequence
  2            Show isoform sequences
  3            Show sequence variations
  Tab          Cycle through modes

General:
  h            Toggle this help
  q, Ctrl+C    Quit application

Current Mode: ` + m.currentMode.String() + `
Total Records: ` + fmt.Sprintf("%d", m.totalRecords) + `
`

	modalStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primaryColor).
		Padding(1, 2).
		Background(surfaceColor).
		Foreground(textColor).
		Width(60).
		Align(lipgloss.Center)

	modal := modalStyle.Render(helpContent)

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		modal,
	)
}

func main() {
	dbPath := flag.String("db", "database.json", "path to the database JSON produced by the fetch pipeline")
	flag.Parse()

	records, err := loadRecords(*dbPath)
	if err != nil {
		log.Fatal(err)
	}

	p := tea.NewProgram(newModel(records), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v", err)
		os.Exit(1)
	}
}
