//go:build linux

package discover

import (
	"time"

	"golang.org/x/sys/unix"
)

// birthTime asks the kernel for the file's birth timestamp via statx. Not
// every filesystem fills STATX_BTIME (NFS mounts at the beamline typically
// do not), so absence is a normal result, not an error.
func birthTime(path string) (time.Time, bool) {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME, &stx)
	if err != nil || stx.Mask&unix.STATX_BTIME == 0 {
		return time.Time{}, false
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), true
}
