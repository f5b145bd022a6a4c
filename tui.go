package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"voicediary/diary"
	"voicediary/flow"
)

// stateMsg signals that the controller changed. The model reads the current
// state back from the controller since messages may arrive out of order.
type stateMsg struct{}

type tickMsg time.Time

type copiedMsg struct {
	what string
	err  error
}

type tuiModel struct {
	ctrl  *flow.Controller
	state flow.State

	width, height int
	frame         int

	// input holds the text being typed on onboarding and recovery pages.
	input  []rune
	status string
}

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Bold(true)
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	recStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	inputStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
)

var severityColors = map[string]lipgloss.Color{
	"green":  lipgloss.Color("42"),
	"orange": lipgloss.Color("208"),
	"red":    lipgloss.Color("196"),
}

var noticeText = map[flow.Notice]string{
	flow.NoticePhoneMissing: "No diary is registered with that phone number.",
	flow.NoticeBadPhone:     "That does not look like a phone number.",
	flow.NoticeCodeMissing:  "No diary uses that pairing code.",
	flow.NoticeLookupError:  "The diary could not be reached. Try again.",
	flow.NoticeMicDenied:    "Microphone access was denied.",
	flow.NoticeMicMissing:   "No microphone is available.",
}

var fieldPrompts = map[string]string{
	flow.FieldName:        "What is your name?",
	flow.FieldAge:         "How old are you?",
	flow.FieldGender:      "Gender",
	flow.FieldPhone:       "Phone number (used to recover your diary)",
	flow.FieldDiseases:    "Known conditions",
	flow.FieldMedications: "Current medications",
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func runTUI(ctx context.Context, a *app) error {
	m := newTUIModel(a.ctrl)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	a.ctrl.OnChange(func(flow.State) { p.Send(stateMsg{}) })
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func newTUIModel(c *flow.Controller) tuiModel {
	m := tuiModel{ctrl: c}
	m.sync()
	return m
}

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// dispatch runs events off the update loop. Listeners call Program.Send,
// which must not happen from inside Update.
func (m tuiModel) dispatch(events ...flow.Event) tea.Cmd {
	c := m.ctrl
	return func() tea.Msg {
		for _, ev := range events {
			c.Dispatch(ev)
		}
		return nil
	}
}

func copyCmd(what, text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{what: what, err: clipboard.WriteAll(text)}
	}
}

// sync adopts the controller state and resets the input buffer when the
// page changes.
func (m *tuiModel) sync() {
	prev := m.state
	m.state = m.ctrl.State()
	if prev.Kind == m.state.Kind && prev.Step == m.state.Step {
		return
	}
	m.status = ""
	m.input = nil
	if field := m.field(); field != "" {
		m.input = []rune(flow.FieldValue(m.ctrl.Context().Profile, field))
	}
}

// field is the profile field edited on the current onboarding page.
func (m tuiModel) field() string {
	if m.state.Kind != flow.Onboarding || m.state.Step < 1 || m.state.Step > len(flow.ProfileFields) {
		return ""
	}
	return flow.ProfileFields[m.state.Step-1]
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case stateMsg:
		m.sync()

	case copiedMsg:
		if msg.err != nil {
			m.status = "Copy failed: " + msg.err.Error()
		} else {
			m.status = msg.what + " copied"
		}

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m tuiModel) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := k.String()
	switch m.state.Kind {
	case flow.RoleSelect:
		switch key {
		case "1":
			return m, m.dispatch(flow.Event{Kind: flow.SelectElderly})
		case "2":
			return m, m.dispatch(flow.Event{Kind: flow.SelectRelative})
		case "3":
			return m, m.dispatch(flow.Event{Kind: flow.SelectRecovery})
		case "r":
			return m, m.dispatch(flow.Event{Kind: flow.Resume})
		case "q":
			return m, tea.Quit
		}

	case flow.Onboarding:
		switch k.Type {
		case tea.KeyEnter:
			events := []flow.Event{{Kind: flow.Next}}
			if field := m.field(); field != "" {
				value := strings.TrimSpace(string(m.input))
				events = append([]flow.Event{{Kind: flow.UpdateProfile, Field: field, Value: value}}, events...)
			}
			return m, m.dispatch(events...)
		case tea.KeyEsc:
			return m, m.dispatch(flow.Event{Kind: flow.Back})
		default:
			m.edit(k, nil)
		}

	case flow.Dashboard:
		switch key {
		case " ":
			return m, m.dispatch(flow.Event{Kind: flow.StartCapture})
		case "c":
			if code := m.ctrl.Context().PairingCode; code != "" {
				return m, copyCmd("Pairing code", code)
			}
		case "q":
			return m, tea.Quit
		}

	case flow.Recording:
		switch key {
		case " ", "enter":
			return m, m.dispatch(flow.Event{Kind: flow.StopCapture})
		case "esc":
			return m, m.dispatch(flow.Event{Kind: flow.Cancel})
		}

	case flow.Result:
		switch key {
		case "enter":
			return m, m.dispatch(flow.Event{Kind: flow.Acknowledge})
		case "c":
			if r := m.ctrl.Context().LastResult; r != nil {
				return m, copyCmd("Summary", r.ClinicalSummary)
			}
		}

	case flow.RecoveryLogin:
		switch k.Type {
		case tea.KeyEnter:
			return m, m.dispatch(flow.Event{Kind: flow.SubmitPhone, Phone: string(m.input)})
		case tea.KeyEsc:
			return m, m.dispatch(flow.Event{Kind: flow.Back})
		default:
			m.edit(k, isPhoneRune)
		}

	case flow.LinkingInput:
		switch k.Type {
		case tea.KeyBackspace:
			return m, m.dispatch(flow.Event{Kind: flow.DeleteDigit})
		case tea.KeyEsc:
			return m, m.dispatch(flow.Event{Kind: flow.Back})
		case tea.KeyRunes:
			var events []flow.Event
			for _, r := range k.Runes {
				events = append(events, flow.Event{Kind: flow.EnterDigit, Digit: r})
			}
			return m, m.dispatch(events...)
		}

	case flow.LinkSuccess:
		if key == "enter" {
			return m, m.dispatch(flow.Event{Kind: flow.Proceed})
		}

	case flow.RelativeDashboard:
		if key == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func isPhoneRune(r rune) bool {
	return unicode.IsDigit(r) || r == '+' || r == '-' || r == ' '
}

// edit applies a key to the input buffer. A nil accept takes any printable
// rune.
func (m *tuiModel) edit(k tea.KeyMsg, accept func(rune) bool) {
	switch k.Type {
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case tea.KeySpace:
		if accept == nil || accept(' ') {
			m.input = append(m.input, ' ')
		}
	case tea.KeyRunes:
		for _, r := range k.Runes {
			if unicode.IsPrint(r) && (accept == nil || accept(r)) {
				m.input = append(m.input, r)
			}
		}
	}
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	wrapWidth := max(m.width-4, 10)

	var b strings.Builder
	b.WriteString(titleStyle.Render("voicediary") + "\n\n")

	switch m.state.Kind {
	case flow.RoleSelect:
		b.WriteString(textStyle.Render("Who is using this device?") + "\n\n")
		b.WriteString(keyStyle.Render("1") + textStyle.Render("  I keep a diary") + "\n")
		b.WriteString(keyStyle.Render("2") + textStyle.Render("  I follow a relative") + "\n")
		b.WriteString(keyStyle.Render("3") + textStyle.Render("  Recover my diary") + "\n")
		if m.ctrl.Context().CanResume() {
			b.WriteString(keyStyle.Render("r") + textStyle.Render("  Continue as "+m.ctrl.Context().Profile.Name) + "\n")
		}

	case flow.Onboarding:
		b.WriteString(dimStyle.Render(fmt.Sprintf("Step %d of %d", m.state.Step, m.ctrl.Steps())) + "\n\n")
		if field := m.field(); field != "" {
			b.WriteString(textStyle.Render(fieldPrompts[field]) + "\n")
			b.WriteString(inputStyle.Render("> "+string(m.input)+"_") + "\n")
		} else {
			b.WriteString(textStyle.Render("Press enter to continue.") + "\n")
		}

	case flow.Dashboard:
		sc := m.ctrl.Context()
		b.WriteString(textStyle.Render("Hello "+sc.Profile.Name) + "\n")
		if sc.PairingCode != "" {
			b.WriteString(dimStyle.Render("Pairing code ") + keyStyle.Render(sc.PairingCode) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("○ STANDBY") + "\n\n")
		b.WriteString(renderEntries(m.ctrl.Entries(), wrapWidth, m.height-14))

	case flow.Recording:
		d := m.ctrl.Elapsed()
		b.WriteString(recStyle.Render(fmt.Sprintf("● REC %02d:%02d", int(d.Minutes()), int(d.Seconds())%60)) + "\n\n")
		b.WriteString(textStyle.Render("Tell us how you feel today.") + "\n")

	case flow.Processing:
		frame := spinnerFrames[m.frame%len(spinnerFrames)]
		b.WriteString(inputStyle.Render(frame) + textStyle.Render(" Listening to your report...") + "\n")

	case flow.Result:
		b.WriteString(m.renderResult(wrapWidth))

	case flow.RecoveryLogin:
		b.WriteString(textStyle.Render("Enter the phone number you registered with.") + "\n")
		if m.state.Pending {
			b.WriteString(dimStyle.Render("Searching...") + "\n")
		} else {
			b.WriteString(inputStyle.Render("> "+string(m.input)+"_") + "\n")
		}

	case flow.LinkingInput:
		b.WriteString(textStyle.Render("Enter the pairing code shown on your relative's device.") + "\n\n")
		b.WriteString(keyStyle.Render(renderCode(m.state.Digits)) + "\n")
		if m.state.Pending {
			b.WriteString(dimStyle.Render("Checking...") + "\n")
		}

	case flow.LinkSuccess:
		sc := m.ctrl.Context()
		name := ""
		if sc.LinkedProfile != nil {
			name = sc.LinkedProfile.Name
		}
		b.WriteString(okStyle.Render("✓ Linked to "+name) + "\n")

	case flow.RelativeDashboard:
		sc := m.ctrl.Context()
		if sc.LinkedProfile != nil {
			b.WriteString(textStyle.Render("Diary of "+sc.LinkedProfile.Name) + dimStyle.Render("  "+sc.LinkedCode) + "\n\n")
		}
		b.WriteString(renderEntries(m.ctrl.Entries(), wrapWidth, m.height-8))
	}

	if text, ok := noticeText[m.state.Notice]; ok {
		b.WriteString("\n" + noticeStyle.Render("⚠ "+text) + "\n")
	}
	if m.status != "" {
		b.WriteString("\n" + okStyle.Render(m.status) + "\n")
	}
	b.WriteString("\n" + m.help() + "\n")

	return lipgloss.NewStyle().Width(m.width).Height(m.height).PaddingLeft(2).Render(b.String())
}

func (m tuiModel) renderResult(width int) string {
	r := m.ctrl.Context().LastResult
	if r == nil {
		return ""
	}
	var b strings.Builder
	sev := lipgloss.NewStyle().Foreground(severityColors[r.Severity.Color]).Bold(true)
	b.WriteString(sev.Render("● "+r.Severity.Label) + "\n\n")
	for _, section := range []struct{ title, text string }{
		{"Summary", r.ClinicalSummary},
		{"You said", r.Transcript},
		{"Mood", r.Mood},
		{"Advice", r.Advice},
	} {
		b.WriteString(dimStyle.Render(section.title) + "\n")
		for _, line := range wrapText(section.text, width) {
			b.WriteString(textStyle.Render(line) + "\n")
		}
		b.WriteString("\n")
	}
	if r.Fallback {
		b.WriteString(noticeStyle.Render("The analysis service was unavailable. This is a placeholder result.") + "\n")
	}
	return b.String()
}

// renderEntries lists the newest entries that fit in rows lines.
func renderEntries(entries []diary.Entry, width, rows int) string {
	if len(entries) == 0 {
		return dimStyle.Render("No entries yet") + "\n"
	}
	rows = max(rows, 1)
	var b strings.Builder
	for i, e := range entries {
		if i == rows {
			b.WriteString(dimStyle.Render(fmt.Sprintf("... %d more", len(entries)-rows)) + "\n")
			break
		}
		sev := lipgloss.NewStyle().Foreground(severityColors[e.SeverityColor])
		head := dimStyle.Render(e.CreatedAt.Local().Format("Jan 02 15:04")) + " " + sev.Render("●") + " "
		summary := wrapText(e.ClinicalSummary, max(width-16, 10))[0]
		b.WriteString(head + textStyle.Render(summary) + "\n")
	}
	return b.String()
}

func renderCode(digits string) string {
	cells := make([]string, flow.CodeLength)
	for i := range cells {
		cells[i] = "_"
		if i < len(digits) {
			cells[i] = string(digits[i])
		}
	}
	return strings.Join(cells[:3], " ") + "  -  " + strings.Join(cells[3:], " ")
}

func (m tuiModel) help() string {
	var pairs [][2]string
	switch m.state.Kind {
	case flow.RoleSelect:
		pairs = [][2]string{{"1-3", "choose"}, {"q", "quit"}}
	case flow.Onboarding:
		pairs = [][2]string{{"enter", "next"}, {"esc", "back"}}
	case flow.Dashboard:
		pairs = [][2]string{{"space", "record"}, {"c", "copy code"}, {"q", "quit"}}
	case flow.Recording:
		pairs = [][2]string{{"space", "stop"}, {"esc", "cancel"}}
	case flow.Result:
		pairs = [][2]string{{"enter", "done"}, {"c", "copy summary"}}
	case flow.RecoveryLogin:
		pairs = [][2]string{{"enter", "search"}, {"esc", "back"}}
	case flow.LinkingInput:
		pairs = [][2]string{{"0-9", "digit"}, {"backspace", "delete"}, {"esc", "back"}}
	case flow.LinkSuccess:
		pairs = [][2]string{{"enter", "continue"}}
	case flow.RelativeDashboard:
		pairs = [][2]string{{"q", "quit"}}
	}
	parts := make([]string, 0, len(pairs)+1)
	for _, p := range pairs {
		parts = append(parts, keyStyle.Render(p[0])+helpStyle.Render(" "+p[1]))
	}
	parts = append(parts, helpStyle.Render(version))
	return strings.Join(parts, helpStyle.Render("  ·  "))
}

// wrapText breaks text on spaces into lines of at most width runes.
func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	rs := []rune(text)
	var lines []string
	for len(rs) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if rs[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(rs[:splitAt]))
		rs = []rune(strings.TrimLeft(string(rs[splitAt:]), " "))
	}
	if len(rs) > 0 {
		lines = append(lines, string(rs))
	}
	return lines
}
