package usyscall

import (
	"testing"
	"time"

	"github.com/hyunhapark/kernelcore/internal/blockdev"
	"github.com/hyunhapark/kernelcore/internal/common"
	"github.com/hyunhapark/kernelcore/internal/sched"
	"github.com/hyunhapark/kernelcore/internal/vm/frame"
	"github.com/hyunhapark/kernelcore/internal/vm/swap"
)

// runRoot spawns entry as the system's single root process and waits
// for the whole resulting thread tree to drain. See
// internal/ksync/ksync_test.go's waitSpawn for why a caller outside a
// scheduled thread may safely do this exactly once.
func runRoot(t *testing.T, s *sched.Scheduler, ft *frame.Table, fs *FileSystem, entry func(*Process)) *Process {
	t.Helper()
	const stackTop = 0x80000000
	var root *Process
	done := make(chan struct{})
	go func() {
		root = NewRootProcess(s, ft, fs, stackTop, "root", sched.PriDefault, entry)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for process tree to finish")
	}
	return root
}

func newTestSystem() (*sched.Scheduler, *frame.Table, *FileSystem) {
	s := sched.New(false)
	dev := blockdev.NewMemory(common.SectorsPerPage * 16)
	ft := frame.New(8, swap.New(dev))
	return s, ft, NewFileSystem()
}

func TestProcessExitRecordsStatus(t *testing.T) {
	s, ft, fs := newTestSystem()
	root := runRoot(t, s, ft, fs, func(p *Process) {
		p.Exit(42)
	})
	if got := root.ExitCode(); got != 42 {
		t.Fatalf("ExitCode = %d, want 42", got)
	}
}

func TestProcessExitUnwindsThroughCallees(t *testing.T) {
	s, ft, fs := newTestSystem()
	var reachedAfterExit bool
	root := runRoot(t, s, ft, fs, func(p *Process) {
		func() {
			p.Exit(7)
			reachedAfterExit = true // must never run
		}()
	})
	if reachedAfterExit {
		t.Fatalf("code after Exit should never run")
	}
	if got := root.ExitCode(); got != 7 {
		t.Fatalf("ExitCode = %d, want 7", got)
	}
}

func TestExecWaitHappyPathAndWaitOnce(t *testing.T) {
	s, ft, fs := newTestSystem()
	const cmdlineAddr = 0x80000000 - 256

	var execTid int
	var firstWait, secondWait int
	runRoot(t, s, ft, fs, func(p *Process) {
		if err := p.AS.CopyIn(cmdlineAddr, []byte("child arg1\x00")); err != nil {
			panic(err)
		}
		execTid = p.Exec(cmdlineAddr, func(c *Process, argv []string) {
			if len(argv) != 2 || argv[0] != "child" || argv[1] != "arg1" {
				c.Exit(-2)
			}
			c.Exit(9)
		})
		firstWait = p.Wait(execTid)
		secondWait = p.Wait(execTid)
	})

	if execTid < 0 {
		t.Fatalf("Exec failed")
	}
	if firstWait != 9 {
		t.Fatalf("first Wait = %d, want 9", firstWait)
	}
	if secondWait != -1 {
		t.Fatalf("second Wait = %d, want -1 (wait-once semantics)", secondWait)
	}
}

func TestWaitOnNonChildReturnsNegativeOne(t *testing.T) {
	s, ft, fs := newTestSystem()
	var result int
	runRoot(t, s, ft, fs, func(p *Process) {
		result = p.Wait(9999)
	})
	if result != -1 {
		t.Fatalf("Wait on a non-child = %d, want -1", result)
	}
}

func TestExecBadCmdlinePointerExitsCaller(t *testing.T) {
	s, ft, fs := newTestSystem()
	root := runRoot(t, s, ft, fs, func(p *Process) {
		p.Exec(0x9999, func(c *Process, argv []string) {})
	})
	if got := root.ExitCode(); got != -1 {
		t.Fatalf("ExitCode after bad exec pointer = %d, want -1", got)
	}
}

func TestFileSyscallsThroughProcess(t *testing.T) {
	s, ft, fs := newTestSystem()
	const nameAddr = 0x80000000 - 64
	const bufAddr = 0x80000000 - 128

	var fd, n, size int
	var readBack string
	runRoot(t, s, ft, fs, func(p *Process) {
		if err := p.AS.CopyIn(nameAddr, []byte("log.txt\x00")); err != nil {
			panic(err)
		}
		if !p.Create(nameAddr, 0) {
			p.Exit(-1)
		}
		fd = p.Open(nameAddr)

		if err := p.AS.CopyIn(bufAddr, []byte("recorded")); err != nil {
			panic(err)
		}
		n = p.Write(fd, bufAddr, len("recorded"))
		size = p.Filesize(fd)

		p.Seek(fd, 0)
		got := p.Read(fd, bufAddr, len("recorded"))
		buf := make([]byte, got)
		if err := p.AS.CopyOut(buf, bufAddr); err != nil {
			panic(err)
		}
		readBack = string(buf)
		p.Close(fd)
	})

	if n != len("recorded") {
		t.Fatalf("Write returned %d, want %d", n, len("recorded"))
	}
	if size != len("recorded") {
		t.Fatalf("Filesize = %d, want %d", size, len("recorded"))
	}
	if readBack != "recorded" {
		t.Fatalf("read back %q, want %q", readBack, "recorded")
	}
}
