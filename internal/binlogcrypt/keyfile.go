package binlogcrypt

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// KeyFile is a parsed file_key_management key file: text lines of
// "<id>;<hex-key>", skipping blanks and comments (§4.4, §6).
type KeyFile struct {
	keys map[uint32][]byte
}

// LoadKeyFile reads and parses a key file from disk.
func LoadKeyFile(path string) (*KeyFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseKeyFile(f)
}

// ParseKeyFile parses the key-file format from an arbitrary reader.
func ParseKeyFile(r io.Reader) (*KeyFile, error) {
	kf := &KeyFile{keys: make(map[uint32][]byte)}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ";", 2)
		if len(parts) != 2 {
			continue
		}
		id64, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			continue
		}
		// from_hex does not validate input and accepts non-hex digits as
		// zeros (§9 open question) — preserved deliberately rather than
		// silently fixed, since downstream tooling may depend on it.
		key := fromHexLenient(parts[1])
		switch len(key) {
		case 16, 24, 32:
		default:
			return nil, fmt.Errorf("binlogcrypt: key id %d has invalid length %d", id64, len(key))
		}
		kf.keys[uint32(id64)] = key
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return kf, nil
}

// fromHexLenient decodes hex, treating any invalid digit as 0 rather than
// failing, matching the original's from_hex behavior (§9).
func fromHexLenient(s string) []byte {
	if decoded, err := hex.DecodeString(s); err == nil {
		return decoded
	}
	out := make([]byte, len(s)/2+len(s)%2)
	nibble := func(c byte) byte {
		switch {
		case c >= '0' && c <= '9':
			return c - '0'
		case c >= 'a' && c <= 'f':
			return c - 'a' + 10
		case c >= 'A' && c <= 'F':
			return c - 'A' + 10
		default:
			return 0
		}
	}
	for i := 0; i+1 < len(s); i += 2 {
		out[i/2] = nibble(s[i])<<4 | nibble(s[i+1])
	}
	if len(s)%2 == 1 {
		out[len(out)-1] = nibble(s[len(s)-1])
	}
	return out
}

// Key returns the key bytes for a given version, if present.
func (kf *KeyFile) Key(version uint32) ([]byte, bool) {
	k, ok := kf.keys[version]
	return k, ok
}
