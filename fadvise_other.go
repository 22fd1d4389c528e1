// fadvise_other.go -- no-op posix_fadvise stand-in for non-Linux builds.
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

//go:build !linux

package mph

func adviseSequential(fd uintptr) {}
