package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/google/shlex"
)

func allOps() []op {
	return append(pinOps[:len(pinOps):len(pinOps)], portReadOp, portWriteOp, blinkOp)
}

func shellOps() map[string]op {
	ops := make(map[string]op)
	for _, o := range allOps() {
		ops[o.name] = o
	}
	return ops
}

// repl reads commands from in until EOF or quit. Pin state persists between
// commands, so a pin configured with mode keeps that configuration.
func (s *session) repl(ctx context.Context, in io.Reader) error {
	ops := shellOps()
	fmt.Fprintf(s.out, "Connected to %s. Type 'help' for commands, 'quit' to exit.\n", s.ctrl.Name())
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			break
		}
		fields, err := shlex.Split(scanner.Text())
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			continue
		}
		if len(fields) == 0 {
			continue
		}

		name, args := fields[0], fields[1:]
		if name == "port" && len(args) > 0 {
			name, args = "port "+args[0], args[1:]
		}
		switch name {
		case "quit", "exit", "q":
			fmt.Fprintln(s.out, "Goodbye!")
			return nil
		case "help", "?":
			s.help()
			continue
		}

		o, ok := ops[name]
		if !ok {
			fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for available commands)\n", name)
			continue
		}
		if len(args) < o.minArgs || len(args) > o.maxArgs {
			fmt.Fprintf(s.out, "Usage: %s\n", s.usage(o))
			continue
		}
		if err := o.run(ctx, s, args); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func (s *session) usage(o op) string {
	if o.name == portReadOp.name || o.name == portWriteOp.name {
		return "port " + o.use
	}
	return o.use
}

func (s *session) help() {
	fmt.Fprintln(s.out, "\nAvailable commands:")
	for _, o := range allOps() {
		fmt.Fprintf(s.out, "  %-40s - %s\n", s.usage(o), o.short)
	}
	fmt.Fprintf(s.out, "  %-40s - %s\n", "help", "Show this help message")
	fmt.Fprintf(s.out, "  %-40s - %s\n", "quit/exit/q", "Exit the console")
	fmt.Fprintln(s.out)
}
