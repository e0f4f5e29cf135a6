package prompt

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	questionStyle = lipgloss.NewStyle().Bold(true)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	answerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// Terminal renders prompts with Bubble Tea on the given streams.
type Terminal struct {
	In       io.Reader
	Out      io.Writer
	PageSize int
}

// NewTerminal returns a Terminal bound to stdin and stdout.
func NewTerminal() *Terminal {
	return &Terminal{In: os.Stdin, Out: os.Stdout, PageSize: 9}
}

func (t *Terminal) run(ctx context.Context, model tea.Model) (tea.Model, error) {
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithInput(t.In), tea.WithOutput(t.Out))
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return final, nil
}

// Select implements Prompter.
func (t *Terminal) Select(ctx context.Context, message string, choices []Choice) (Choice, error) {
	if len(choices) == 0 {
		return Choice{}, fmt.Errorf("prompt %q has no choices", message)
	}
	final, err := t.run(ctx, newSelectModel(message, choices, t.PageSize))
	if err != nil {
		return Choice{}, err
	}
	m := final.(selectModel)
	if m.aborted {
		return Choice{}, ErrAborted
	}
	return m.choices[m.cursor], nil
}

// Input implements Prompter.
func (t *Terminal) Input(ctx context.Context, message string) (string, error) {
	final, err := t.run(ctx, newInputModel(message))
	if err != nil {
		return "", err
	}
	m := final.(inputModel)
	if m.aborted {
		return "", ErrAborted
	}
	return strings.TrimSpace(m.input.Value()), nil
}

// Confirm implements Prompter.
func (t *Terminal) Confirm(ctx context.Context, message string, def bool) (bool, error) {
	final, err := t.run(ctx, confirmModel{message: message, answer: def})
	if err != nil {
		return false, err
	}
	m := final.(confirmModel)
	if m.aborted {
		return false, ErrAborted
	}
	return m.answer, nil
}

type selectModel struct {
	message  string
	choices  []Choice
	cursor   int
	pageSize int
	done     bool
	aborted  bool
}

func newSelectModel(message string, choices []Choice, pageSize int) selectModel {
	if pageSize <= 0 {
		pageSize = len(choices)
	}
	return selectModel{message: message, choices: choices, pageSize: pageSize}
}

func (m selectModel) Init() tea.Cmd { return nil }

func (m selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k", "shift+tab":
		m.cursor = (m.cursor - 1 + len(m.choices)) % len(m.choices)
	case "down", "j", "tab":
		m.cursor = (m.cursor + 1) % len(m.choices)
	case "enter":
		m.done = true
		return m, tea.Quit
	case "esc", "ctrl+c":
		m.aborted = true
		return m, tea.Quit
	}
	return m, nil
}

func (m selectModel) View() string {
	var b strings.Builder
	b.WriteString(questionStyle.Render("? " + m.message))
	if m.done {
		b.WriteString(" " + answerStyle.Render(m.choices[m.cursor].Label) + "\n")
		return b.String()
	}
	b.WriteString("\n")
	width := 0
	for _, c := range m.choices {
		if w := runewidth.StringWidth(c.Label); w > width {
			width = w
		}
	}
	start := 0
	if m.cursor >= m.pageSize {
		start = m.cursor - m.pageSize + 1
	}
	end := start + m.pageSize
	if end > len(m.choices) {
		end = len(m.choices)
	}
	for i := start; i < end; i++ {
		c := m.choices[i]
		line := runewidth.FillRight(c.Label, width)
		if c.Hint != "" {
			line += "  " + hintStyle.Render(c.Hint)
		}
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> ") + line + "\n")
			continue
		}
		b.WriteString("  " + line + "\n")
	}
	return b.String()
}

type inputModel struct {
	message string
	input   textinput.Model
	done    bool
	aborted bool
}

func newInputModel(message string) inputModel {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Focus()
	return inputModel{message: message, input: ti}
}

func (m inputModel) Init() tea.Cmd { return textinput.Blink }

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.done = true
			return m, tea.Quit
		case "esc", "ctrl+c":
			m.aborted = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.done {
		return questionStyle.Render("? "+m.message) + " " + answerStyle.Render(m.input.Value()) + "\n"
	}
	return questionStyle.Render("? "+m.message) + " " + m.input.View() + "\n"
}

type confirmModel struct {
	message string
	answer  bool
	done    bool
	aborted bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch strings.ToLower(key.String()) {
	case "y":
		m.answer, m.done = true, true
		return m, tea.Quit
	case "n":
		m.answer, m.done = false, true
		return m, tea.Quit
	case "enter":
		m.done = true
		return m, tea.Quit
	case "esc", "ctrl+c":
		m.aborted = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	q := questionStyle.Render("? " + m.message)
	if m.done {
		answer := "No"
		if m.answer {
			answer = "Yes"
		}
		return q + " " + answerStyle.Render(answer) + "\n"
	}
	hint := "(y/N)"
	if m.answer {
		hint = "(Y/n)"
	}
	return q + " " + hintStyle.Render(hint)
}
