package ids

import (
	"crypto/rand"
	"strconv"
	"time"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// New returns a time-prefixed identifier such as "pb_1718294932100_k3x9q0ab".
// The millisecond prefix keeps ids roughly sortable by creation time; the
// random suffix covers collisions within the same millisecond.
func New(prefix string) string {
	return prefix + "_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + randBase36(8)
}

// Generated returns a short identifier like "channel_k3x9q0ab", used when a
// caller supplies no channel or user id of its own.
func Generated(prefix string) string {
	return prefix + "_" + randBase36(8)
}

func randBase36(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i := range buf {
		buf[i] = base36[int(buf[i])%len(base36)]
	}
	return string(buf)
}
