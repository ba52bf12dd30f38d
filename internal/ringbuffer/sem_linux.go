//go:build linux

package ringbuffer

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Semaphore indices within a block's semaphore set.
const (
	semFull  = 0 // counts pages readable by this client
	semClear = 1 // counts pages released back to the writer
)

type sembuf struct {
	Num uint16
	Op  int16
	Flg int16
}

func semget(key, nsems, flag int) (int, error) {
	id, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), uintptr(nsems), uintptr(flag))
	if errno != 0 {
		return 0, fmt.Errorf("semget key 0x%x: %w", key, errno)
	}
	return int(id), nil
}

func semop(id int, ops []sembuf) error {
	if len(ops) == 0 {
		return nil
	}
	_, _, errno := unix.Syscall(unix.SYS_SEMOP, uintptr(id), uintptr(unsafe.Pointer(&ops[0])), uintptr(len(ops)))
	if errno != 0 {
		return errno
	}
	return nil
}

// semTryDecrement attempts a non-blocking decrement of one semaphore.
// It returns unix.EAGAIN when the semaphore is currently zero.
func semTryDecrement(id int, num uint16) error {
	return semop(id, []sembuf{{Num: num, Op: -1, Flg: unix.IPC_NOWAIT}})
}

// semIncrement adds one to a semaphore.
func semIncrement(id int, num uint16) error {
	return semop(id, []sembuf{{Num: num, Op: 1}})
}
