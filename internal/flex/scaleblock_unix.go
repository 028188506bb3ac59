//go:build unix

package flex

import "golang.org/x/sys/unix"

// mapBlock prefers an anonymous mapping so the block lives outside the Go heap
// like a device allocation would; it falls back to the heap if mmap fails.
func mapBlock(size int) ([]byte, bool, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err == nil {
		return mem, true, nil
	}
	return make([]byte, size), false, nil
}

func unmapBlock(mem []byte) error {
	return unix.Munmap(mem)
}
