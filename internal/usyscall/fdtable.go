package usyscall

import (
	"fmt"
	"io"
	"sync"
)

// FileSystem is the single fake in-memory filesystem every process's fd
// table opens against. One global filesystem lock serializes
// create/remove/open/filesize, plus separate read and write path locks:
// reads are serialized with each other and writes with each other, while
// one read may overlap one write -- the original's
// filesys_lock/filesys_rlock/filesys_wlock split in syscall.c. Real
// directory/inode structure is out of scope (spec.md's Non-goals exclude
// filesystem internals); files are just named byte slices.
type FileSystem struct {
	mu    sync.Mutex // filesys_lock: create/remove/open/filesize
	rlock sync.Mutex // filesys_rlock
	wlock sync.Mutex // filesys_wlock

	files map[string][]byte
}

// NewFileSystem constructs an empty fake filesystem.
func NewFileSystem() *FileSystem {
	return &FileSystem{files: make(map[string][]byte)}
}

// Create adds an empty (initialSize-zeroed) file named name, failing if
// it already exists (filesys_create's contract).
func (fs *FileSystem) Create(name string, initialSize int) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, exists := fs.files[name]; exists {
		return false
	}
	fs.files[name] = make([]byte, initialSize)
	return true
}

// Remove deletes name, returning whether it existed.
func (fs *FileSystem) Remove(name string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, exists := fs.files[name]; !exists {
		return false
	}
	delete(fs.files, name)
	return true
}

// openHandle hands out a private io.Reader/Writer-free reference to the
// file data; the caller (fdTable) tracks its own seek position.
func (fs *FileSystem) openHandle(name string) (*fileHandle, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	data, exists := fs.files[name]
	if !exists {
		return nil, false
	}
	return &fileHandle{fs: fs, name: name, data: data}, true
}

type fileHandle struct {
	fs   *FileSystem
	name string
	data []byte
}

func (h *fileHandle) length() int {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	return len(h.fs.files[h.name])
}

func (h *fileHandle) readAt(offset int64, buf []byte) int {
	h.fs.rlock.Lock()
	defer h.fs.rlock.Unlock()
	h.fs.mu.Lock()
	data := h.fs.files[h.name]
	h.fs.mu.Unlock()
	if offset >= int64(len(data)) {
		return 0
	}
	n := copy(buf, data[offset:])
	return n
}

func (h *fileHandle) writeAt(offset int64, buf []byte) int {
	h.fs.wlock.Lock()
	defer h.fs.wlock.Unlock()
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	data := h.fs.files[h.name]
	need := int(offset) + len(buf)
	if need > len(data) {
		grown := make([]byte, need)
		copy(grown, data)
		data = grown
	}
	n := copy(data[offset:], buf)
	h.fs.files[h.name] = data
	return n
}

const (
	stdinFd  = 0
	stdoutFd = 1
	stderrFd = 2
	firstFd  = 3
)

type openFile struct {
	fd     int
	handle *fileHandle
	pos    int64
}

// FDTable is one process's open-file-descriptor table, pre-seeded with
// stdin/stdout/stderr at fds 0-2 the way userprog/syscall.c's
// get_next_fd/open_list pair does, starting user fds at 3. Lookup is by
// equality (spec.md §9): the original's `if (fd = of->fd)` assignment
// bug is not reproduced.
type FDTable struct {
	mu     sync.Mutex
	fs     *FileSystem
	open   map[int]*openFile
	nextFd int
	stdout io.Writer
	stderr io.Writer
}

// NewFDTable constructs an fd table bound to fs, writing fd 1/2 traffic
// to stdout/stderr (nil defaults to io.Discard, for tests that don't
// care about console output).
func NewFDTable(fs *FileSystem, stdout, stderr io.Writer) *FDTable {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &FDTable{fs: fs, open: make(map[int]*openFile), nextFd: firstFd, stdout: stdout, stderr: stderr}
}

// lookup finds the open file for fd. A map keyed by fd gives the
// equality-based lookup spec.md §9 calls for directly; the original's
// `if (fd = of->fd)` assignment bug (a linear list scan over an
// open_list) has no equivalent here.
func (t *FDTable) lookup(fd int) *openFile {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open[fd]
}

// Open opens name and returns a fresh fd, or -1 if the file doesn't
// exist.
func (t *FDTable) Open(name string) int {
	h, ok := t.fs.openHandle(name)
	if !ok {
		return -1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := t.nextFd
	t.nextFd++
	t.open[fd] = &openFile{fd: fd, handle: h}
	return fd
}

// Close drops fd from the table; closing an unopened or already-closed
// fd is a silent no-op, matching the original's close().
func (t *FDTable) Close(fd int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.open, fd)
}

// Filesize returns the length of the file backing fd, or -1 if fd isn't
// open on a real file.
func (t *FDTable) Filesize(fd int) int {
	of := t.lookup(fd)
	if of == nil {
		return -1
	}
	return of.handle.length()
}

// Read reads up to len(buf) bytes from fd (console input for fd 0 is a
// stub: specific I/O device drivers are out of scope per spec.md's
// Non-goals, so stdin always reports EOF). Returns bytes read, or -1 if
// fd isn't open.
func (t *FDTable) Read(fd int, buf []byte) int {
	if fd == stdinFd {
		return 0
	}
	of := t.lookup(fd)
	if of == nil {
		return -1
	}
	t.mu.Lock()
	pos := of.pos
	t.mu.Unlock()
	n := of.handle.readAt(pos, buf)
	t.mu.Lock()
	of.pos += int64(n)
	t.mu.Unlock()
	return n
}

// Write writes buf to fd; fd 1/2 go to the console writers instead of a
// file. Returns bytes written, or -1 if fd isn't open.
func (t *FDTable) Write(fd int, buf []byte) int {
	switch fd {
	case stdoutFd:
		n, _ := t.stdout.Write(buf)
		return n
	case stderrFd:
		n, _ := t.stderr.Write(buf)
		return n
	}
	of := t.lookup(fd)
	if of == nil {
		return -1
	}
	t.mu.Lock()
	pos := of.pos
	t.mu.Unlock()
	n := of.handle.writeAt(pos, buf)
	t.mu.Lock()
	of.pos += int64(n)
	t.mu.Unlock()
	return n
}

// Seek sets fd's next read/write position.
func (t *FDTable) Seek(fd int, pos int64) {
	of := t.lookup(fd)
	if of == nil {
		return
	}
	t.mu.Lock()
	of.pos = pos
	t.mu.Unlock()
}

// Tell returns fd's current position, or -1 if fd isn't open.
func (t *FDTable) Tell(fd int) int64 {
	of := t.lookup(fd)
	if of == nil {
		return -1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return of.pos
}

// ReadAt implements internal/vm/pagefault.FileSource: fileID is an open
// fd, letting a process's executable or a memory-mapped file (were mmap
// in scope, which it isn't -- spec.md Non-goals) be demand-paged through
// the same fd table syscalls use.
func (t *FDTable) ReadAt(fileID int, offset int64, buf []byte) (int, error) {
	of := t.lookup(fileID)
	if of == nil {
		return 0, fmt.Errorf("usyscall: ReadAt on unopened fd %d", fileID)
	}
	return of.handle.readAt(offset, buf), nil
}
