package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/resguard/guard"
	"github.com/wippyai/resguard/registry"
)

func main() {
	var (
		count       = flag.Int("n", 4, "Number of scratch resources to acquire")
		leak        = flag.Int("leak", 1, "Resources to leave to the fallback release path")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *debug {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		guard.SetLogger(logger)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*count, *leak); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// scratch is the demo resource: a temp file removed on release.
type scratch struct {
	f *os.File
}

func newScratch() (*scratch, error) {
	f, err := os.CreateTemp("", "guardwatch-*")
	if err != nil {
		return nil, err
	}
	return &scratch{f: f}, nil
}

func (s *scratch) release() error {
	name := s.f.Name()
	if err := s.f.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Remove(name)
}

// printObserver logs every registry event to stdout and counts leaks.
type printObserver struct {
	leaked atomic.Int32
}

func (o *printObserver) OnGuardEvent(e registry.Event) {
	if e.Type == registry.EventLeaked {
		o.leaked.Add(1)
	}
	fmt.Printf("  [%s] handle=%d %s\n", e.Type, e.Handle, e.Name)
}

func run(count, leak int) error {
	if leak > count {
		leak = count
	}

	reg := registry.New()
	obs := &printObserver{}
	reg.Subscribe(obs)

	fmt.Printf("Acquiring %d scratch resources (%d will be leaked):\n", count, leak)

	guards := make([]*guard.Guard[*scratch], 0, count)
	for i := 0; i < count; i++ {
		s, err := newScratch()
		if err != nil {
			return fmt.Errorf("create scratch: %w", err)
		}
		g := guard.Acquire(s, (*scratch).release,
			guard.WithName(fmt.Sprintf("scratch-%d", i)),
			guard.WithRegistry(reg))
		guards = append(guards, g)
	}

	fmt.Printf("\nReleasing %d explicitly:\n", count-leak)
	for _, g := range guards[leak:] {
		if err := g.Release(); err != nil {
			return err
		}
	}

	if leak > 0 {
		fmt.Printf("\nDropping the remaining %d and waiting for the fallback path:\n", leak)
		guards = nil

		deadline := time.Now().Add(5 * time.Second)
		for obs.leaked.Load() < int32(leak) {
			if time.Now().After(deadline) {
				fmt.Println("  (fallback release did not run before the deadline; it is best-effort)")
				break
			}
			runtime.GC()
			time.Sleep(20 * time.Millisecond)
		}
	}

	fmt.Printf("\nStill tracked: %d\n", reg.Len())
	reg.Each(func(h registry.Handle, e registry.Entry) bool {
		fmt.Printf("  handle=%d %s (tracked %s ago)\n",
			h, e.Name, time.Since(e.TrackedAt).Truncate(time.Millisecond))
		return true
	})

	return reg.Close()
}
