// main.go - wiresim: compile, run and inspect Wire HDL circuits from the
// command line.

// Copyright (c) 2026 Wireforge Project contributors
// License: GPLv3 or later

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wireforge/wirecore/sim"
	"github.com/wireforge/wirecore/wire"
)

func main() {
	root := &cobra.Command{
		Use:   "wiresim",
		Short: "Wire HDL compiler and circuit simulator",
	}

	root.AddCommand(compileCmd())
	root.AddCommand(runCmd())
	root.AddCommand(replCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func compileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile <top-module> <file.wire> [more.wire...]",
		Short: "Compile and flatten a Wire HDL design, reporting wire and node counts",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			top, paths := args[0], args[1:]
			files, err := loadAndParseFiles(context.Background(), paths)
			if err != nil {
				return err
			}
			compiled, err := compileAll(files)
			if err != nil {
				return err
			}
			flat, err := wire.Flatten(compiled, top)
			if err != nil {
				return err
			}
			fmt.Printf("module %s: %d modules compiled, %d wires, %d nodes\n",
				top, len(compiled), flat.WireCount, len(flat.Nodes))
			fmt.Printf("inputs:  %s\n", portList(flat.Inputs))
			fmt.Printf("outputs: %s\n", portList(flat.Outputs))
			return nil
		},
	}
}

func portList(ports []wire.FlatPort) string {
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = fmt.Sprintf("%s:%d", p.Name, p.Width)
	}
	return strings.Join(names, ", ")
}

func runCmd() *cobra.Command {
	var cycles int
	var sets []string

	cmd := &cobra.Command{
		Use:   "run <top-module> <file.wire>",
		Short: "Run a circuit for a number of cycles and print its outputs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			top, path := args[0], args[1]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			s, err := sim.CreateSimulator(string(data), top)
			if err != nil {
				return err
			}
			for _, kv := range sets {
				name, val, err := parseAssignment(kv)
				if err != nil {
					return err
				}
				if !hasInput(s, name) {
					return fmt.Errorf("no such input %q", name)
				}
				s.SetInput(name, val)
			}
			s.Run(cycles)
			for _, p := range s.Outputs() {
				fmt.Printf("%s = %d\n", p.Name, s.GetOutput(p.Name))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&cycles, "cycles", 1, "number of clock cycles to run")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "input=value, may be repeated")
	return cmd
}

func parseAssignment(kv string) (string, uint32, error) {
	parts := strings.SplitN(kv, "=", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("expected name=value, got %q", kv)
	}
	v, err := strconv.ParseUint(parts[1], 0, 32)
	if err != nil {
		return "", 0, fmt.Errorf("bad value in %q: %w", kv, err)
	}
	return parts[0], uint32(v), nil
}

func replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl <top-module> <file.wire>",
		Short: "Interactively set inputs, step and inspect wires",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			top, path := args[0], args[1]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			s, err := sim.CreateSimulator(string(data), top)
			if err != nil {
				return err
			}
			return runRepl(s)
		},
	}
}

func hasInput(s *sim.Simulator, name string) bool {
	for _, p := range s.Inputs() {
		if p.Name == name {
			return true
		}
	}
	return false
}

func runRepl(s *sim.Simulator) error {
	fmt.Println("wiresim repl — commands: set <name> <value>, step [n], get <name>, wires, reset, quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return nil
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "exit":
			return nil
		case "set":
			if len(fields) != 3 {
				fmt.Println("usage: set <name> <value>")
				continue
			}
			v, err := strconv.ParseUint(fields[2], 0, 32)
			if err != nil {
				fmt.Println(err)
				continue
			}
			if !hasInput(s, fields[1]) {
				fmt.Printf("no such input %q\n", fields[1])
				continue
			}
			s.SetInput(fields[1], uint32(v))
		case "step":
			n := 1
			if len(fields) == 2 {
				if v, err := strconv.Atoi(fields[1]); err == nil {
					n = v
				}
			}
			s.Run(n)
		case "get":
			if len(fields) != 2 {
				fmt.Println("usage: get <name>")
				continue
			}
			fmt.Println(s.GetWire(fields[1]))
		case "wires":
			for name, v := range s.GetAllWires() {
				fmt.Printf("%s = %d\n", name, v)
			}
		case "reset":
			s.Reset()
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}
