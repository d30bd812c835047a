package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"mediapool/internal/config"
)

// errAborted marks an interactive session the operator backed out of. Commands
// treat it as a clean exit, not a failure.
var errAborted = errors.New("aborted")

// prompter reads interactive answers from the command's input stream. A real
// stdin must be a terminal before any question is asked; scripts and pipes get
// explicit flags instead. A replaced input stream counts as interactive so
// driven sessions can answer prompts.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	ok  bool
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	return &prompter{
		in:  bufio.NewReader(in),
		out: cmd.OutOrStdout(),
		ok:  interactiveInput(in),
	}
}

func interactiveInput(r io.Reader) bool {
	file, isFile := r.(*os.File)
	if !isFile {
		return r != nil
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p *prompter) interactive() bool {
	return p != nil && p.ok
}

// line prints the label and returns one trimmed input line. EOF reads as an
// empty answer.
func (p *prompter) line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	text, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// yesNo asks until it understands the answer. Enter picks the default.
func (p *prompter) yesNo(question string, def bool) (bool, error) {
	suffix := " [y/N] "
	if def {
		suffix = " [Y/n] "
	}
	for {
		answer, err := p.line(question + suffix)
		if err != nil {
			return def, err
		}
		switch strings.ToLower(answer) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(p.out, "Please answer y or n.")
	}
}

// literal requires the operator to type an exact word. Anything else declines.
func (p *prompter) literal(question, token string) (bool, error) {
	answer, err := p.line(question)
	if err != nil {
		return false, err
	}
	return answer == token, nil
}

// choose renders a numbered menu and returns the zero-based pick. Enter with
// no number aborts, reported through ok=false.
func (p *prompter) choose(title string, options []string) (int, bool, error) {
	fmt.Fprintln(p.out, title)
	for i, opt := range options {
		fmt.Fprintf(p.out, "  [%d] %s\n", i+1, opt)
	}
	for {
		answer, err := p.line("> ")
		if err != nil {
			return 0, false, err
		}
		if answer == "" {
			return 0, false, nil
		}
		pick, convErr := strconv.Atoi(answer)
		if convErr == nil && pick >= 1 && pick <= len(options) {
			return pick - 1, true, nil
		}
		fmt.Fprintf(p.out, "Enter a number between 1 and %d, or press Enter to abort.\n", len(options))
	}
}

// selectUser resolves the acting pool user: the flag value when given (either
// a user name or its selection letter), otherwise an interactive keymap menu.
func selectUser(cfg *config.Config, flagValue string, p *prompter) (string, error) {
	flagValue = strings.TrimSpace(flagValue)
	if flagValue != "" {
		return lookupUser(cfg, flagValue)
	}
	if !p.interactive() {
		return "", errors.New("user is required (use --user)")
	}

	fmt.Fprintln(p.out, "Who are you?")
	for _, key := range keymapKeys(cfg) {
		fmt.Fprintf(p.out, "  [%s] %s\n", key, cfg.Users.Keymap[key])
	}
	for {
		answer, err := p.line("> ")
		if err != nil {
			return "", err
		}
		if answer == "" {
			return "", errAborted
		}
		if name, lookupErr := lookupUser(cfg, answer); lookupErr == nil {
			return name, nil
		}
		fmt.Fprintln(p.out, "Unknown selection.")
	}
}

func lookupUser(cfg *config.Config, value string) (string, error) {
	if name, ok := cfg.UserForKey(value); ok {
		return name, nil
	}
	for _, name := range cfg.UserNames() {
		if strings.EqualFold(name, value) {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown user %q (configured: %s)", value, strings.Join(cfg.UserNames(), ", "))
}

func keymapKeys(cfg *config.Config) []string {
	keys := make([]string, 0, len(cfg.Users.Keymap))
	for key := range cfg.Users.Keymap {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
