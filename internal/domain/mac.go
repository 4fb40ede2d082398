package domain

import (
	"strings"
)

// MAC is a 48-bit network address rendered as 12 lowercase hex characters
// without separators.
type MAC string

// NormalizeMAC strips separators and lowercases a client-supplied MAC.
// It does not validate; call Valid on the result.
func NormalizeMAC(s string) MAC {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ":", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, ".", "")
	return MAC(s)
}

// Valid reports whether the MAC identifies a real, unicast, globally
// administered network: 12 lowercase hex characters, not all zeros or
// all ones, and neither the multicast nor the locally-administered bit
// of the first octet set.
func (m MAC) Valid() bool {
	if len(m) != 12 {
		return false
	}
	allZero, allF := true, true
	for _, c := range m {
		switch {
		case c >= '0' && c <= '9':
			allF = false
			if c != '0' {
				allZero = false
			}
		case c >= 'a' && c <= 'f':
			allZero = false
			if c != 'f' {
				allF = false
			}
		default:
			return false
		}
	}
	if allZero || allF {
		return false
	}

	firstOctet := hexVal(m[0])<<4 | hexVal(m[1])
	if firstOctet&0x01 != 0 { // multicast / broadcast
		return false
	}
	if firstOctet&0x02 != 0 { // locally administered
		return false
	}
	return true
}

// ShardID returns the station shard label for this MAC, its first hex
// character. Sixteen shards, "0" through "f".
func (m MAC) ShardID() string {
	if len(m) == 0 {
		return "0"
	}
	return string(m[0])
}

func hexVal(c byte) int {
	if c >= '0' && c <= '9' {
		return int(c - '0')
	}
	return int(c-'a') + 10
}
