package main

// isValidNick checks if a nickname is valid.
//
// We accept only a-z, 0-9, or _ (RFC 1459 is more lenient; this mirrors the
// donor's own restricted accept set).
func isValidNick(maxLen int, n string) bool {
	if len(n) == 0 || len(n) > maxLen {
		return false
	}

	for i, char := range n {
		if char >= 'a' && char <= 'z' {
			continue
		}

		if char >= '0' && char <= '9' {
			// No digits in first position.
			if i == 0 {
				return false
			}
			continue
		}

		if char == '_' {
			continue
		}

		return false
	}

	return true
}

// isValidUser checks if a user (USER command) is valid.
func isValidUser(maxLen int, u string) bool {
	if len(u) == 0 || len(u) > maxLen {
		return false
	}

	for _, char := range u {
		if char >= 'a' && char <= 'z' {
			continue
		}

		if char >= '0' && char <= '9' {
			continue
		}

		return false
	}

	return true
}

// isValidChannel checks a channel name for validity. The name should be
// casefolded before being passed in.
func isValidChannel(maxLen int, c string) bool {
	if len(c) == 0 || len(c) > maxLen {
		return false
	}

	for i, char := range c {
		if i == 0 {
			// Only # channels are supported.
			if char == '#' {
				continue
			}
			return false
		}

		if char >= 'a' && char <= 'z' {
			continue
		}

		if char >= '0' && char <= '9' {
			continue
		}

		return false
	}

	return true
}
