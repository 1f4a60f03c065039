// Command gicv5sim is a small demonstration driver for the gicv5 core,
// grounded on awesomeVM's cmd/mipsvm and cmd/lc3 entrypoints: flag-based
// configuration, a verbose-logging helper, and a one-shot batch run by
// default with an optional interactive watch mode.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"gicv5"
	"gicv5/boardconfig"
	"gicv5/gpa"
	"gicv5/stream"
)

var verbose bool

func printIfVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

func main() {
	numCPUs := flag.Int("cpus", 4, "number of CPU interfaces to realize")
	spiBase := flag.Uint("spi-base", 32, "first SPI ID implemented")
	numSPIs := flag.Uint("num-spis", 480, "number of SPIs implemented")
	memSize := flag.Int("mem", 1<<20, "backing guest memory size in bytes")
	configPath := flag.String("config", "", "path to a YAML board description (overrides the other flags)")
	watch := flag.Bool("watch", false, "hold the terminal in raw mode until interrupted (wake-line changes are not reported)")
	flag.BoolVar(&verbose, "v", false, "verbose logging")
	flag.Parse()

	mem, err := gpa.NewGuestMemory(*memSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gicv5sim: allocate guest memory: %v\n", err)
		os.Exit(1)
	}
	defer mem.Close()

	cfg := gicv5.SystemConfig{
		IRSID:    1,
		SPIBase:  uint32(*spiBase),
		NumSPIs:  uint32(*numSPIs),
		SPIRange: 1 << 16,
		NumCPUs:  *numCPUs,
	}
	if *configPath != "" {
		board, err := boardconfig.LoadFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gicv5sim: %v\n", err)
			os.Exit(1)
		}
		cfg = board.SystemConfig()
		printIfVerbose("loaded board config from %s", *configPath)
	}

	sys, err := gicv5.Realize(mem, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gicv5sim: realize: %v\n", err)
		os.Exit(1)
	}
	defer sys.Close()

	printIfVerbose("realized IRS with %d CPU interfaces, %d SPIs starting at %d", cfg.NumCPUs, cfg.NumSPIs, cfg.SPIBase)

	cmds := sys.Commands()
	const demoSPI = 40
	cmds.SetTarget(int(gicv5.DomainNS), demoSPI, stream.KindSPI, 0)
	cmds.SetPriority(int(gicv5.DomainNS), demoSPI, stream.KindSPI, 4)
	cmds.SetEnabled(int(gicv5.DomainNS), demoSPI, stream.KindSPI, true)
	sys.CPU(0).SetPriorityMask(int(gicv5.DomainNS), 31)
	sys.SetSPI(int(gicv5.DomainNS), demoSPI, true)

	for i := 0; i < sys.NumCPUs(); i++ {
		sys.CPU(i).SetCR0(int(gicv5.DomainNS), 1)
	}

	for i := 0; i < sys.NumCPUs(); i++ {
		cand, ok := sys.CPU(i).HPPI()
		if ok {
			fmt.Printf("cpu%d: HPPI id=%d priority=%d\n", i, cand.ID, cand.Priority)
		} else {
			fmt.Printf("cpu%d: idle\n", i)
		}
	}

	if !*watch {
		return
	}
	runWatch()
}

// runWatch puts the terminal in raw mode (golang.org/x/term, as in
// awesomeVM and tinyrange-cc) and blocks until SIGTERM/SIGINT, the same
// signal-driven shutdown shape as awesomeVM's cmd/mipsvm.
func runWatch() {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			printIfVerbose("could not enter raw mode: %v", err)
		} else {
			defer term.Restore(int(os.Stdin.Fd()), oldState)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, os.Interrupt)
	printIfVerbose("watching; press Ctrl-C to exit")
	<-sigCh
}
