package core

// itoa formats n in decimal without the fmt package
func itoa(n int) string {
	if n < 0 {
		return "-" + formatUint(uint64(-int64(n)))
	}
	return formatUint(uint64(n))
}

// utoa formats an unsigned 32-bit value in decimal
func utoa(n uint32) string {
	return formatUint(uint64(n))
}

func formatUint(n uint64) string {
	var buf [20]byte
	pos := len(buf)
	for {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return string(buf[pos:])
}
