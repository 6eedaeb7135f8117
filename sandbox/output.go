package sandbox

// Output is the result of a single Run. Code is 0 when the target was
// killed by a signal; Signal is 0 when the target exited normally. Times
// are milliseconds, memory is KiB (see spec §3, §6).
type Output struct {
	Code     int    `json:"code"`
	Signal   int    `json:"signal"`
	RealTime uint64 `json:"real_time_ms"`
	UserTime uint64 `json:"user_time_ms"`
	SysTime  uint64 `json:"sys_time_ms"`
	MemoryKB uint64 `json:"memory_kb"`
}

// Success reports whether the target both exited normally and returned 0.
func (o Output) Success() bool {
	return o.Code == 0 && o.Signal == 0
}
