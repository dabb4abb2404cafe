// main.go - pulseasm: assemble and run Pulse programs from the command
// line.

// Copyright (c) 2026 Wireforge Project contributors
// License: GPLv3 or later

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wireforge/wirecore/pulse"
	pulseio "github.com/wireforge/wirecore/pulse/io"
)

func main() {
	root := &cobra.Command{
		Use:   "pulseasm",
		Short: "Pulse assembler and CPU runner",
	}
	root.AddCommand(assembleCmd())
	root.AddCommand(runCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func assembleCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "assemble <source.asm>",
		Short: "Assemble a Pulse source file and print (or write) its bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			prog, err := pulse.Assemble(string(src))
			if err != nil {
				return err
			}
			if outPath != "" {
				return os.WriteFile(outPath, prog.Binary, 0644)
			}
			fmt.Printf("origin: $%04X\n", prog.Origin)
			for i, b := range prog.Binary {
				if i%16 == 0 {
					if i != 0 {
						fmt.Println()
					}
					fmt.Printf("$%04X: ", int(prog.Origin)+i)
				}
				fmt.Printf("%02X ", b)
			}
			fmt.Println()
			if len(prog.Symbols) > 0 {
				fmt.Println("symbols:")
				for name, addr := range prog.Symbols {
					fmt.Printf("  %-16s $%04X\n", name, addr)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write raw assembled bytes to this file instead of printing them")
	return cmd
}

func runCmd() *cobra.Command {
	var maxSteps int
	var trace bool
	var interactive bool

	cmd := &cobra.Command{
		Use:   "run <source.asm>",
		Short: "Assemble and execute a Pulse program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			prog, err := pulse.Assemble(string(src))
			if err != nil {
				return err
			}

			mem := pulse.NewMemory()
			mem.LoadAt(prog.Origin, prog.Binary)
			mem.SetResetVector(prog.Origin)

			dev := pulseio.NewSerialDevice()
			mem.IO = dev
			dev.OnTX(func(b byte) {
				fmt.Printf("%c", b)
			})

			var host *pulseio.SerialHost
			if interactive {
				host = pulseio.NewSerialHost(dev)
				host.Start()
				defer host.Stop()
			}

			cpu := pulse.NewCPU(mem)
			cpu.Reset()
			if trace {
				cpu.OnStep = func(pc uint16, opcode byte) {
					line := prog.SourceMap[pc]
					fmt.Fprintf(os.Stderr, "$%04X (line %d): $%02X  A=%02X X=%02X Y=%02X SR=%02X SP=%02X\n",
						pc, line, opcode, cpu.A, cpu.X, cpu.Y, cpu.SR, cpu.SP)
				}
			}

			steps := cpu.Run(maxSteps)
			fmt.Fprintf(os.Stderr, "\nhalted after %d instruction(s): A=%02X X=%02X Y=%02X SR=%02X\n",
				steps, cpu.A, cpu.X, cpu.Y, cpu.SR)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxSteps, "max-steps", 1_000_000, "maximum instructions to execute before giving up")
	cmd.Flags().BoolVar(&trace, "trace", false, "print each instruction's register state to stderr")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "attach stdin as the serial device's input source")
	return cmd
}
