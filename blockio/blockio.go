/*
 * rvsim - Generic file/block device interface.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package blockio is the abstract block device backing a disk or flash
// device model (a §6 external collaborator; the core itself never opens a
// file). It is grounded on the teacher's util/tape.Context: one *os.File
// plus a small amount of state, generalized here from tape's sequential
// frame cursor to positioned reads/writes that do not disturb the cursor,
// since a disk model needs both modes.
package blockio

import (
	"errors"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// OpenFlag controls how Open prepares the backing file.
type OpenFlag int

const (
	ReadWrite OpenFlag = 1 << iota
	Create
	Exclusive
	Truncate
	Direct // bypass the page cache where the platform supports O_DIRECT
	Sync   // disable writeback caching
)

var ErrNotOpen = errors.New("blockio: device not open")

// Device is a positioned-access block device. ReadAt/WriteAt are safe for
// concurrent use by multiple goroutines and never consult or mutate the
// seek cursor; Seek/Tell/Read/Write operate the cursor-based mode used by
// sequential device models.
type Device struct {
	mu   sync.Mutex
	file *os.File
	name string
}

// Open prepares the backing file per flags. Direct is attempted via
// O_DIRECT and silently degrades to buffered I/O if the platform or
// filesystem rejects it (documented at the call site that requested it,
// not hidden here).
func Open(name string, flags OpenFlag) (*Device, bool, error) {
	osFlags := os.O_RDONLY
	if flags&ReadWrite != 0 {
		osFlags = os.O_RDWR
	}
	if flags&Create != 0 {
		osFlags |= os.O_CREATE
	}
	if flags&Exclusive != 0 {
		osFlags |= os.O_EXCL
	}
	if flags&Truncate != 0 {
		osFlags |= os.O_TRUNC
	}
	if flags&Sync != 0 {
		osFlags |= os.O_SYNC
	}

	if flags&Direct != 0 {
		f, err := os.OpenFile(name, osFlags|unix.O_DIRECT, 0o644)
		if err == nil {
			return &Device{file: f, name: name}, true, nil
		}
	}

	f, err := os.OpenFile(name, osFlags, 0o644)
	if err != nil {
		return nil, false, err
	}
	return &Device{file: f, name: name}, false, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return ErrNotOpen
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// ReadAt/WriteAt are the thread-safe positioned operations spec section 6
// requires; *os.File.ReadAt/WriteAt are already safe for concurrent use
// without serializing through d.mu, so no lock is taken here beyond the nil
// check.
func (d *Device) ReadAt(buf []byte, offset int64) (int, error) {
	if d.file == nil {
		return 0, ErrNotOpen
	}
	return d.file.ReadAt(buf, offset)
}

func (d *Device) WriteAt(buf []byte, offset int64) (int, error) {
	if d.file == nil {
		return 0, ErrNotOpen
	}
	return d.file.WriteAt(buf, offset)
}

// Seek/Tell/Read/Write form the cursor-based mode for sequential device
// models (tape-like access), grounded directly on tape.Context's use of
// *os.File.Seek.
func (d *Device) Seek(offset int64, whence int) (int64, error) {
	if d.file == nil {
		return 0, ErrNotOpen
	}
	return d.file.Seek(offset, whence)
}

func (d *Device) Tell() (int64, error) {
	return d.Seek(0, io.SeekCurrent)
}

func (d *Device) Read(buf []byte) (int, error) {
	if d.file == nil {
		return 0, ErrNotOpen
	}
	return d.file.Read(buf)
}

func (d *Device) Write(buf []byte) (int, error) {
	if d.file == nil {
		return 0, ErrNotOpen
	}
	return d.file.Write(buf)
}

// Truncate sets the file length.
func (d *Device) Truncate(size int64) error {
	if d.file == nil {
		return ErrNotOpen
	}
	return d.file.Truncate(size)
}

// Fallocate reserves [offset, offset+length) without writing data,
// via FALLOC_FL_KEEP_SIZE so it does not also extend the file.
func (d *Device) Fallocate(offset, length int64) error {
	if d.file == nil {
		return ErrNotOpen
	}
	return unix.Fallocate(int(d.file.Fd()), unix.FALLOC_FL_KEEP_SIZE, offset, length)
}

// Trim punches a hole at [offset, offset+length), for block devices backing
// a discard/TRIM command.
func (d *Device) Trim(offset, length int64) error {
	if d.file == nil {
		return ErrNotOpen
	}
	return unix.Fallocate(int(d.file.Fd()), unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, offset, length)
}

// Fsync flushes data and metadata; Fdatasync flushes data only.
func (d *Device) Fsync() error {
	if d.file == nil {
		return ErrNotOpen
	}
	return d.file.Sync()
}

func (d *Device) Fdatasync() error {
	if d.file == nil {
		return ErrNotOpen
	}
	return unix.Fdatasync(int(d.file.Fd()))
}

func (d *Device) Name() string { return d.name }
