// fadvise_linux.go -- posix_fadvise hint for shard reads.
//
// (c) Sudhi Herle 2018
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

//go:build linux

package mph

import "golang.org/x/sys/unix"

// adviseSequential tells the kernel that fd will be read front-to-back in
// full, once, the way readShard() and Iter() consume a shard file.
func adviseSequential(fd uintptr) {
	unix.Fadvise(int(fd), 0, 0, unix.FADV_SEQUENTIAL)
}
