// Package shell implements the interactive client REPL.
package shell

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/keleshev/tau/internal/client"
	"github.com/keleshev/tau/internal/tau"
)

var commands = []prompt.Suggest{
	{Text: "get", Description: "Read signals: get <name|pattern>..."},
	{Text: "set", Description: "Write values: set <name>=<value>..."},
	{Text: "signals", Description: "List stored signal names"},
	{Text: "clear", Description: "Delete all stored data"},
	{Text: "exit", Description: "Leave the shell"},
}

// Shell is an interactive session against one server.
type Shell struct {
	client *client.Client
}

// New creates a shell talking to the server at addr.
func New(addr string) *Shell {
	return &Shell{client: client.New(addr)}
}

// Run starts the REPL. It requires a terminal on stdin.
func (s *Shell) Run() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("shell requires a terminal")
	}
	p := prompt.New(s.execute, s.complete,
		prompt.OptionTitle("tau"),
		prompt.OptionPrefix("tau> "))
	p.Run()
	return nil
}

func (s *Shell) execute(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "exit", "quit":
		os.Exit(0)
	case "get":
		s.get(fields[1:])
	case "set":
		s.set(fields[1:])
	case "signals":
		s.signals()
	case "clear":
		if err := s.client.Clear(); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", fields[0])
	}
}

func (s *Shell) get(names []string) {
	if len(names) == 0 {
		fmt.Fprintln(os.Stderr, "usage: get <name|pattern>...")
		return
	}
	result, err := s.client.Get(tau.Query{Names: names})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	printResult(result)
}

func (s *Shell) set(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: set <name>=<value>...")
		return
	}
	values := make(map[string]any, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok {
			fmt.Fprintf(os.Stderr, "malformed argument %q, want name=value\n", arg)
			return
		}
		values[name] = parseValue(raw)
	}
	if err := s.client.Set(values); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
}

func (s *Shell) signals() {
	signals, err := s.client.Signals()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	for _, signal := range signals {
		fmt.Println(signal)
	}
}

func (s *Shell) complete(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	if !strings.Contains(text, " ") {
		return prompt.FilterHasPrefix(commands, d.GetWordBeforeCursor(), true)
	}

	// Past the command word, complete signal names.
	signals, err := s.client.Signals()
	if err != nil {
		return nil
	}
	suggests := make([]prompt.Suggest, len(signals))
	for i, signal := range signals {
		suggests[i] = prompt.Suggest{Text: signal}
	}
	return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
}

// parseValue interprets raw as JSON when possible, otherwise as a
// string. "8" becomes the number 8, "on" stays a string.
func parseValue(raw string) any {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	return value
}

func printResult(result any) {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	fmt.Println(string(out))
}
