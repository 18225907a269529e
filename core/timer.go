package core

// TicksFromUS converts microseconds to ticks of a timer running at resolutionHz
func TicksFromUS(us, resolutionHz uint32) uint32 {
	return uint32(uint64(us) * uint64(resolutionHz) / 1000000)
}

// USFromTicks converts timer ticks to microseconds
func USFromTicks(ticks, resolutionHz uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / uint64(resolutionHz))
}

// NSFromTicks converts timer ticks to nanoseconds
func NSFromTicks(ticks, resolutionHz uint32) uint32 {
	return uint32(uint64(ticks) * 1000000000 / uint64(resolutionHz))
}

// timerBefore reports whether time a is before time b, tolerating wraparound
// of the 32 bit counter.
func timerBefore(a, b uint32) bool {
	return int32(a-b) < 0
}
