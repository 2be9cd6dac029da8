package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) > 1 {
		cmd := os.Args[1]
		var err error
		switch cmd {
		case "run":
			err = RunForwardCommand(os.Args[2:])
		case "summary":
			err = RunSummaryCommand(os.Args[2:])
		case "config":
			err = RunConfigCommand(os.Args[2:])
		case "benchmark":
			err = RunBenchmarkCommand(os.Args[2:])
		case "help", "-h", "--help":
			printUsage()
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
			printUsage()
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Default: show help
	printUsage()
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  go run . [command] [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run        Run a forward pass on synthetic fields")
	fmt.Println("  summary    Print per-module parameter counts")
	fmt.Println("  config     Print or write the effective configuration")
	fmt.Println("  benchmark  Compare serial and pooled forward throughput")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  go run . run -mode=fwd -batch=4")
	fmt.Println("  go run . run -config=prose.yaml -mode=generate -output-len=8")
	fmt.Println("  go run . summary -variant=fluids")
	fmt.Println("  go run . config -out=prose.yaml")
	fmt.Println("  go run . benchmark -batches=1,8,32 -json=bench.json")
	fmt.Println()
}
