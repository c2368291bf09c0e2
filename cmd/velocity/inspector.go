package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"github.com/spade-lang/velocity/memory"
	"github.com/spade-lang/velocity/vm"
)

// runInspector drives the interactive inspector: a readline loop for
// loading modules, resolving signatures and poking the heap.
func runInspector(machine *vm.SpadeVM, manager *memory.BasicManager) error {
	rl, err := readline.New("velocity> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println(machine.Settings().InfoString())
	fmt.Println("type 'help' for commands")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "help":
			fmt.Println("modules              list loaded modules")
			fmt.Println("load FILE            load a module file")
			fmt.Println("run FILE [ARG...]    load and run a module file")
			fmt.Println("resolve SIGN         resolve a signature")
			fmt.Println("gc                   collect garbage")
			fmt.Println("stats                print heap statistics")
			fmt.Println("threads              list live threads")
			fmt.Println("exit                 leave the inspector")

		case "modules":
			modules := machine.Modules()
			names := make([]string, 0, len(modules))
			for name := range modules {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  %s (%s)\n", name, modules[name].Path())
			}

		case "load":
			if len(fields) < 2 {
				fmt.Println("usage: load FILE")
				continue
			}
			module, err := machine.Loader().Load(fields[1])
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Printf("loaded %s\n", module.String())

		case "run":
			if len(fields) < 2 {
				fmt.Println("usage: run FILE [ARG...]")
				continue
			}
			code, err := machine.StartFile(fields[1], fields[2:])
			if err != nil {
				fmt.Printf("error: %v\n", err)
			}
			fmt.Printf("exit code %d\n", code)

		case "resolve":
			if len(fields) < 2 {
				fmt.Println("usage: resolve SIGN")
				continue
			}
			symbol, err := machine.GetSymbol(fields[1], true)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println(symbol.String())

		case "gc":
			machine.CollectGarbage()
			fmt.Println(manager.Stats())

		case "stats":
			fmt.Println(manager.Stats())

		case "threads":
			for _, t := range vm.LiveThreads() {
				fmt.Printf("  %s (%s)\n", t.ID(), t.Status())
			}

		case "exit", "quit":
			return nil

		default:
			fmt.Printf("unknown command '%s'\n", fields[0])
		}
	}
}
