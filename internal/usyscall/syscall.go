package usyscall

import "github.com/hyunhapark/kernelcore/internal/common"

// Each of these mirrors one entry of the original's
// create/remove/open/close/read/write/seek/tell/filesize set
// (userprog/syscall.c), serialized by FDTable/FileSystem's locks rather
// than re-deriving filesys_lock/filesys_rlock/filesys_wlock here. Every
// syscall that takes a user pointer validates it by way of
// AddressSpace.CopyInString/CopyOut/CopyIn, which exits the calling
// process with status -1 on any translation failure (spec.md §4.10's
// blanket validation rule).

// Create implements the `create` syscall.
func (p *Process) Create(nameVaddr uintptr, initialSize int) bool {
	name := p.mustCopyInString(nameVaddr)
	return p.Fd.fs.Create(name, initialSize)
}

// Remove implements the `remove` syscall.
func (p *Process) Remove(nameVaddr uintptr) bool {
	name := p.mustCopyInString(nameVaddr)
	return p.Fd.fs.Remove(name)
}

// Open implements the `open` syscall.
func (p *Process) Open(nameVaddr uintptr) int {
	name := p.mustCopyInString(nameVaddr)
	return p.Fd.Open(name)
}

// Close implements the `close` syscall.
func (p *Process) Close(fd int) {
	p.Fd.Close(fd)
}

// Filesize implements the `filesize` syscall.
func (p *Process) Filesize(fd int) int {
	return p.Fd.Filesize(fd)
}

// Seek implements the `seek` syscall.
func (p *Process) Seek(fd int, pos int) {
	p.Fd.Seek(fd, int64(pos))
}

// Tell implements the `tell` syscall.
func (p *Process) Tell(fd int) int {
	return int(p.Fd.Tell(fd))
}

// Read implements the `read` syscall: size bytes starting at bufVaddr,
// translated page by page so a read spanning a demand-paged boundary
// works (spec.md §4.10).
func (p *Process) Read(fd int, bufVaddr uintptr, size int) int {
	buf := make([]byte, size)
	n := p.Fd.Read(fd, buf)
	if n < 0 {
		return -1
	}
	if err := p.AS.CopyIn(bufVaddr, buf[:n]); err != nil {
		p.Exit(-1)
	}
	return n
}

// Write implements the `write` syscall.
func (p *Process) Write(fd int, bufVaddr uintptr, size int) int {
	buf := make([]byte, size)
	if err := p.AS.CopyOut(buf, bufVaddr); err != nil {
		p.Exit(-1)
	}
	return p.Fd.Write(fd, buf)
}

// mustCopyInString reads a NUL-terminated user string, exiting the
// process with status -1 if the pointer doesn't validate -- the
// blanket rule spec.md §4.10 states before listing the per-syscall
// behaviors.
func (p *Process) mustCopyInString(vaddr uintptr) string {
	s, err := p.AS.CopyInString(vaddr, common.PGSIZE)
	if err != nil {
		p.Exit(-1)
	}
	return s
}
