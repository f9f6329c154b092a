package sugar

import (
	"bytes"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

type failingModel struct {
	err error
}

func (m failingModel) Init() tea.Cmd {
	return func() tea.Msg { return errors.New("lookup failed") }
}

func (m failingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if err, ok := msg.(error); ok {
		m.err = err
		return m, tea.Quit
	}
	return m, nil
}

func (m failingModel) View() string { return "" }

func (m failingModel) GetError() error { return m.err }

func TestRunProgramWithErrors(t *testing.T) {
	var out bytes.Buffer
	_, err := RunProgramWithErrors(failingModel{}, tea.WithInput(nil), tea.WithOutput(&out))
	assert.EqualError(t, err, "lookup failed")
}
