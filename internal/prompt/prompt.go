// Package prompt implements the InputPrompter collaborator (spec §4.3.2):
// an interactive bubbletea form for the input step strategy's text, email,
// url, password, number, select, confirm, and multiline prompt types, plus
// a non-interactive CI default that falls back to each prompt's ci_default.
package prompt

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/flowtest/internal/config"
	flowtesterrors "github.com/alexisbeaulieu97/flowtest/pkg/errors"
)

// Prompter resolves a set of input prompts into values, one per prompt
// name (spec §4.3.2).
type Prompter interface {
	Prompt(ctx context.Context, prompts []config.InputPrompt) (map[string]interface{}, error)
}

// CIPrompter is the non-interactive fallback used when flowtest runs
// without a terminal: every prompt resolves to its ci_default (falling
// back to default), or fails validation if required and absent.
type CIPrompter struct{}

// Prompt implements Prompter.
func (CIPrompter) Prompt(ctx context.Context, prompts []config.InputPrompt) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(prompts))
	for _, p := range prompts {
		value := p.CIDefault
		if value == nil {
			value = p.Default
		}
		if value == nil && p.Required {
			return nil, flowtesterrors.NewInputValidationError(p.Name, "required input has no ci_default or default")
		}
		values[p.Name] = value
	}
	return values, nil
}

// Interactive is the default, terminal-driven Prompter. It runs one
// bubbletea program per prompt, in order, matching the teacher's
// Elm-architecture TUI style (internal/tui).
type Interactive struct{}

// Prompt implements Prompter.
func (Interactive) Prompt(ctx context.Context, prompts []config.InputPrompt) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(prompts))
	for _, p := range prompts {
		value, err := promptOne(p)
		if err != nil {
			return nil, err
		}
		values[p.Name] = value
	}
	return values, nil
}

func promptOne(p config.InputPrompt) (interface{}, error) {
	switch p.Type {
	case "select":
		return runSelect(p)
	case "confirm":
		return runConfirm(p)
	case "multiline":
		return runMultiline(p)
	default:
		return runTextInput(p)
	}
}

var (
	promptStyle = lipgloss.NewStyle().Bold(true)
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

type textModel struct {
	prompt config.InputPrompt
	input  textinput.Model
	done   bool
	cancel bool
}

func newTextModel(p config.InputPrompt) textModel {
	ti := textinput.New()
	ti.Placeholder = fmt.Sprintf("%v", p.Default)
	ti.Focus()
	if p.Type == "password" {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	}
	return textModel{prompt: p, input: ti}
}

func (m textModel) Init() tea.Cmd { return textinput.Blink }

func (m textModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancel = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m textModel) View() string {
	label := m.prompt.Message
	if label == "" {
		label = m.prompt.Name
	}
	return fmt.Sprintf("%s\n%s\n%s", promptStyle.Render(label), m.input.View(), helpStyle.Render("enter to confirm, esc to cancel"))
}

func runTextInput(p config.InputPrompt) (interface{}, error) {
	program := tea.NewProgram(newTextModel(p))
	final, err := program.Run()
	if err != nil {
		return nil, flowtesterrors.NewInputValidationError(p.Name, err.Error())
	}
	result := final.(textModel)
	if result.cancel {
		return nil, flowtesterrors.NewInputValidationError(p.Name, "input cancelled")
	}

	raw := strings.TrimSpace(result.input.Value())
	if raw == "" {
		if p.Default != nil {
			return p.Default, nil
		}
		if p.Required {
			return nil, flowtesterrors.NewInputValidationError(p.Name, "value is required")
		}
		return nil, nil
	}

	return coerce(p, raw)
}

func coerce(p config.InputPrompt, raw string) (interface{}, error) {
	switch p.Type {
	case "number":
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, flowtesterrors.NewInputValidationError(p.Name, "not a number")
		}
		return n, nil
	case "email":
		if !strings.Contains(raw, "@") {
			return nil, flowtesterrors.NewInputValidationError(p.Name, "not a valid email")
		}
		return raw, nil
	case "url":
		if !strings.Contains(raw, "://") {
			return nil, flowtesterrors.NewInputValidationError(p.Name, "not a valid url")
		}
		return raw, nil
	default:
		return raw, nil
	}
}

type selectItem string

func (s selectItem) Title() string       { return string(s) }
func (s selectItem) Description() string { return "" }
func (s selectItem) FilterValue() string { return string(s) }

type selectModel struct {
	prompt config.InputPrompt
	list   list.Model
	chosen string
	cancel bool
}

func newSelectModel(p config.InputPrompt) selectModel {
	items := make([]list.Item, 0, len(p.Options))
	for _, opt := range p.Options {
		items = append(items, selectItem(opt))
	}
	label := p.Message
	if label == "" {
		label = p.Name
	}
	l := list.New(items, list.NewDefaultDelegate(), 40, 14)
	l.Title = label
	return selectModel{prompt: p, list: l}
}

func (m selectModel) Init() tea.Cmd { return nil }

func (m selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			if item, ok := m.list.SelectedItem().(selectItem); ok {
				m.chosen = string(item)
			}
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancel = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m selectModel) View() string { return m.list.View() }

func runSelect(p config.InputPrompt) (interface{}, error) {
	program := tea.NewProgram(newSelectModel(p))
	final, err := program.Run()
	if err != nil {
		return nil, flowtesterrors.NewInputValidationError(p.Name, err.Error())
	}
	result := final.(selectModel)
	if result.cancel || result.chosen == "" {
		if p.Default != nil {
			return p.Default, nil
		}
		return nil, flowtesterrors.NewInputValidationError(p.Name, "no option selected")
	}
	return result.chosen, nil
}

type confirmModel struct {
	prompt config.InputPrompt
	value  bool
	done   bool
	cancel bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "y", "Y":
			m.value, m.done = true, true
			return m, tea.Quit
		case "n", "N":
			m.value, m.done = false, true
			return m, tea.Quit
		case "enter":
			m.done = true
			return m, tea.Quit
		case "ctrl+c", "esc":
			m.cancel = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m confirmModel) View() string {
	label := m.prompt.Message
	if label == "" {
		label = m.prompt.Name
	}
	return fmt.Sprintf("%s [y/n]\n%s", promptStyle.Render(label), helpStyle.Render("y/n, enter for default"))
}

func runConfirm(p config.InputPrompt) (interface{}, error) {
	defaultValue, _ := p.Default.(bool)
	program := tea.NewProgram(confirmModel{prompt: p, value: defaultValue})
	final, err := program.Run()
	if err != nil {
		return nil, flowtesterrors.NewInputValidationError(p.Name, err.Error())
	}
	result := final.(confirmModel)
	if result.cancel {
		return nil, flowtesterrors.NewInputValidationError(p.Name, "input cancelled")
	}
	return result.value, nil
}

type textareaModel struct {
	prompt config.InputPrompt
	area   textarea.Model
	done   bool
	cancel bool
}

func newTextareaModel(p config.InputPrompt) textareaModel {
	ta := textarea.New()
	ta.Placeholder = fmt.Sprintf("%v", p.Default)
	ta.ShowLineNumbers = false
	ta.Focus()
	return textareaModel{prompt: p, area: ta}
}

func (m textareaModel) Init() tea.Cmd { return textarea.Blink }

// Update lets the embedded textarea handle every key as usual except
// enter, which it intercepts to check whether the line just finished is
// the END terminator (spec §4.3.2) before deciding whether to forward it
// as an ordinary newline.
func (m textareaModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.Type {
		case tea.KeyEnter:
			if currentLineIsEndTerminator(m.area.Value()) {
				m.done = true
				return m, tea.Quit
			}
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancel = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.area, cmd = m.area.Update(msg)
	return m, cmd
}

func (m textareaModel) View() string {
	label := m.prompt.Message
	if label == "" {
		label = m.prompt.Name
	}
	return fmt.Sprintf("%s\n%s\n%s", promptStyle.Render(label), m.area.View(), helpStyle.Render("type END on its own line to finish, esc to cancel"))
}

// currentLineIsEndTerminator reports whether the line currently being
// typed (the text after the last newline already committed to value) is
// exactly "END".
func currentLineIsEndTerminator(value string) bool {
	lines := strings.Split(value, "\n")
	return strings.TrimSpace(lines[len(lines)-1]) == "END"
}

func runMultiline(p config.InputPrompt) (interface{}, error) {
	program := tea.NewProgram(newTextareaModel(p))
	final, err := program.Run()
	if err != nil {
		return nil, flowtesterrors.NewInputValidationError(p.Name, err.Error())
	}
	result := final.(textareaModel)
	if result.cancel {
		return nil, flowtesterrors.NewInputValidationError(p.Name, "input cancelled")
	}

	lines := strings.Split(result.area.Value(), "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "END" {
		lines = lines[:len(lines)-1]
	}
	raw := strings.Join(lines, "\n")

	if raw == "" {
		if p.Default != nil {
			return p.Default, nil
		}
		if p.Required {
			return nil, flowtesterrors.NewInputValidationError(p.Name, "value is required")
		}
		return nil, nil
	}
	return raw, nil
}
