// Command kernel boots a simulated kernel in a single OS process: a
// scheduler, a logical timer, a shared frame pool backed by a swap
// device, and one root process that exercises the syscall surface
// end to end. It stands in for BiscuitOS's main.go, but everything
// that main.go does to bring up actual x86 hardware (APIC/IOAPIC
// setup, the keyboard/COM1 IRQ daemons, per-CPU bring-up, the network
// stack dump helpers) has no simulated device behind it here and is
// not reproduced -- see DESIGN.md.
package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/hyunhapark/kernelcore/internal/blockdev"
	"github.com/hyunhapark/kernelcore/internal/common"
	"github.com/hyunhapark/kernelcore/internal/klog"
	"github.com/hyunhapark/kernelcore/internal/sched"
	"github.com/hyunhapark/kernelcore/internal/timer"
	"github.com/hyunhapark/kernelcore/internal/usyscall"
	"github.com/hyunhapark/kernelcore/internal/vm/frame"
	"github.com/hyunhapark/kernelcore/internal/vm/swap"
)

var (
	mlfqs      bool
	verbose    bool
	frameCount int
	swapPages  int
	tickRate   time.Duration
)

func init() {
	pflag.BoolVar(&mlfqs, "mlfqs", false, "use the multi-level feedback queue scheduler instead of priority donation")
	pflag.BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	pflag.IntVar(&frameCount, "frames", 32, "number of physical frames in the simulated frame pool")
	pflag.IntVar(&swapPages, "swap-pages", 64, "size of the simulated swap device, in pages")
	pflag.DurationVar(&tickRate, "tick", 10*time.Millisecond, "wall-clock duration of one logical timer tick")
}

func main() {
	pflag.Parse()
	if verbose {
		klog.SetLevel(logrus.DebugLevel)
	}

	s := sched.New(mlfqs)
	dev := blockdev.NewMemory(int64(swapPages) * common.SectorsPerPage)
	ft := frame.New(frameCount, swap.New(dev))
	fs := usyscall.NewFileSystem()
	tm := timer.New(s)

	stop := make(chan struct{})
	go tm.Run(tickRate, stop)
	defer close(stop)

	klog.For("kernel").WithFields(logrus.Fields{
		"mlfqs":  mlfqs,
		"frames": frameCount,
	}).Info("booting")

	// NewRootProcess blocks here until the whole process tree it spawns
	// has exited: the caller is a bare goroutine, not a scheduled
	// thread, so the scheduler treats it as the idle context and the
	// higher-priority root thread preempts it immediately (Spawn's
	// preemption rule) and won't hand control back until current
	// reverts to idle.
	root := usyscall.NewRootProcess(s, ft, fs, common.PhysBase, "init", sched.PriDefault, runInit)
	fmt.Printf("init exited with status %d\n", root.ExitCode())
}

// runInit is the root process: it exercises create/open/write/seek/
// read/close, then exec/wait, in one pass, the way userprog/syscall.c's
// own test programs do against a freshly booted filesystem.
func runInit(p *usyscall.Process) {
	const nameAddr = common.PhysBase - 64
	const bufAddr = common.PhysBase - 256
	const cmdAddr = common.PhysBase - 512

	if err := p.Memory().CopyIn(nameAddr, []byte("greeting.txt\x00")); err != nil {
		p.Exit(-1)
	}
	if !p.Create(nameAddr, 0) {
		p.Exit(-1)
	}
	fd := p.Open(nameAddr)

	msg := []byte("hello from init\n")
	if err := p.Memory().CopyIn(bufAddr, msg); err != nil {
		p.Exit(-1)
	}
	p.Write(fd, bufAddr, len(msg))
	p.Seek(fd, 0)

	got := p.Read(fd, bufAddr, len(msg))
	readBack := make([]byte, got)
	if err := p.Memory().CopyOut(readBack, bufAddr); err != nil {
		p.Exit(-1)
	}
	fmt.Printf("init read back: %s", readBack)
	p.Close(fd)

	if err := p.Memory().CopyIn(cmdAddr, []byte("worker\x00")); err != nil {
		p.Exit(-1)
	}
	childTid := p.Exec(cmdAddr, runWorker)
	if childTid < 0 {
		p.Exit(-1)
	}
	status := p.Wait(childTid)
	fmt.Printf("worker exited with %d\n", status)
	p.Exit(status)
}

// runWorker is the program exec spawns: it just announces itself and
// exits, standing in for a real loaded ELF binary (spec.md's Non-goals
// exclude an actual loader; argv is what exec already validated).
func runWorker(p *usyscall.Process, argv []string) {
	fmt.Printf("%s running as tid %d, argv=%v\n", argv[0], p.Tid(), argv)
	p.Exit(0)
}
