package timex

import "time"

// NowNs returns Unix nanoseconds.
func NowNs() int64 { return time.Now().UnixNano() }
