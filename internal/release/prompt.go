package release

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
)

// ErrCancelled is returned by a Prompter when the user interrupts input.
var ErrCancelled = errors.New("cancelled by user")

// Prompter asks the user questions during a release.
type Prompter interface {
	// Ask returns a free-form answer. An empty answer is valid.
	Ask(question string) (string, error)

	// Confirm asks a yes/no question. Anything but an explicit yes is no.
	Confirm(question string) (bool, error)
}

// ReadlinePrompter reads answers from a terminal with line editing. One
// readline instance serves every question; Close releases it.
type ReadlinePrompter struct {
	Stdin  io.ReadCloser
	Stdout io.Writer

	mu sync.Mutex
	rl *readline.Instance
}

// NewReadlinePrompter returns a prompter bound to the process's stdin and
// stdout.
func NewReadlinePrompter() *ReadlinePrompter {
	return &ReadlinePrompter{Stdin: os.Stdin, Stdout: os.Stdout}
}

func (p *ReadlinePrompter) instance() (*readline.Instance, error) {
	if p.rl != nil {
		return p.rl, nil
	}
	rl, err := readline.NewEx(&readline.Config{
		InterruptPrompt: "^C",
		Stdin:           p.Stdin,
		Stdout:          p.Stdout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	p.rl = rl
	return rl, nil
}

// Ask implements Prompter. Ctrl+D yields an empty answer and Ctrl+C
// returns ErrCancelled.
func (p *ReadlinePrompter) Ask(question string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rl, err := p.instance()
	if err != nil {
		return "", err
	}
	cyan := color.New(color.FgCyan).SprintFunc()
	rl.SetPrompt(cyan(question) + " ")

	line, err := rl.Readline()
	if err != nil {
		if err == readline.ErrInterrupt {
			return "", ErrCancelled
		} else if err == io.EOF {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Close releases the terminal. It is safe to call more than once.
func (p *ReadlinePrompter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rl == nil {
		return nil
	}
	err := p.rl.Close()
	p.rl = nil
	return err
}

// Confirm implements Prompter.
func (p *ReadlinePrompter) Confirm(question string) (bool, error) {
	answer, err := p.Ask(question + " [y/N]")
	if err != nil {
		return false, err
	}
	return parseYes(answer), nil
}

func parseYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// AutoPrompter answers every question without user input: descriptions are
// empty and confirmations are accepted. It backs the --yes flag.
type AutoPrompter struct{}

// Ask implements Prompter.
func (AutoPrompter) Ask(string) (string, error) { return "", nil }

// Confirm implements Prompter.
func (AutoPrompter) Confirm(string) (bool, error) { return true, nil }
