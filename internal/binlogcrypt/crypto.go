// Package binlogcrypt implements the MariaDB 10.1 binlog event encryption
// scheme (§4.4): AES-CBC or AES-CTR over the event bytes, keyed per file by
// a {scheme, key_version, nonce} context read from a START_ENCRYPTION_EVENT,
// with the clear 4-byte event-size field left visible so a reader can
// navigate the file without holding a key.
package binlogcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
)

// Scheme identifies the cipher mode negotiated for a binlog file.
type Scheme uint8

const (
	SchemeUnset Scheme = 0
	SchemeCBC   Scheme = 1
	SchemeCTR   Scheme = 2
)

// ParseScheme maps the `encryption_algorithm` config value (§6) to a Scheme.
func ParseScheme(name string) (Scheme, error) {
	switch name {
	case "aes_cbc":
		return SchemeCBC, nil
	case "aes_ctr":
		return SchemeCTR, nil
	}
	return SchemeUnset, fmt.Errorf("binlogcrypt: unknown encryption_algorithm %q", name)
}

// Context is the per-file encryption state derived from a
// START_ENCRYPTION_EVENT (§3: "Encryption context (per file)").
type Context struct {
	Scheme     Scheme
	KeyVersion uint32
	Nonce      [12]byte
	Key        []byte // resolved from the key file by KeyVersion
}

// iv builds the per-event initialization vector: nonce || u32be(pos) (§4.4).
func (c *Context) iv(pos uint32) []byte {
	iv := make([]byte, 16)
	copy(iv, c.Nonce[:])
	binary.BigEndian.PutUint32(iv[12:], pos)
	return iv
}

// eventSizeOffset and swapOffset are the fixed offsets the scheme swaps
// so the 4-byte event-size stays legible without a key (§4.4).
const (
	eventSizeOffset = 0
	swapOffset      = 9
	swapLen         = 4
)

// Transform encrypts (encrypt=true) or decrypts (encrypt=false) one event's
// bytes in place. event must be the full on-disk event (header + body +
// checksum, i.e. everything at offset pos in the file) and must be at
// least 13 bytes long.
func (c *Context) Transform(event []byte, pos uint32, encrypt bool) error {
	if len(event) < swapOffset+swapLen {
		return fmt.Errorf("binlogcrypt: event too short to transform (%d bytes)", len(event))
	}
	if c.Scheme == SchemeUnset {
		return fmt.Errorf("binlogcrypt: no encryption scheme configured")
	}
	block, err := aes.NewCipher(c.Key)
	if err != nil {
		return err
	}
	iv := c.iv(pos)

	// Swap the clear event-size field into [9:13) so bytes [4:L) can be
	// transformed as one contiguous run, then swap back.
	var savedSize [swapLen]byte
	copy(savedSize[:], event[swapOffset:swapOffset+swapLen])
	copy(event[swapOffset:swapOffset+swapLen], event[eventSizeOffset:eventSizeOffset+swapLen])
	defer func() {
		copy(event[eventSizeOffset:eventSizeOffset+swapLen], event[swapOffset:swapOffset+swapLen])
		copy(event[swapOffset:swapOffset+swapLen], savedSize[:])
	}()

	payload := event[swapLen:]
	switch c.Scheme {
	case SchemeCBC:
		return transformCBC(block, iv, payload, encrypt)
	case SchemeCTR:
		return transformCTR(block, iv, payload)
	default:
		return fmt.Errorf("binlogcrypt: unsupported scheme %d", c.Scheme)
	}
}

// transformCBC encrypts/decrypts payload with AES-CBC, preserving length by
// XOR-ing the trailing partial block against AES-ECB(key, iv) instead of
// padding it (§4.4).
func transformCBC(block cipher.Block, iv []byte, payload []byte, encrypt bool) error {
	blockSize := block.BlockSize()
	full := (len(payload) / blockSize) * blockSize
	head, tail := payload[:full], payload[full:]

	if len(head) > 0 {
		if encrypt {
			cipher.NewCBCEncrypter(block, iv).CryptBlocks(head, head)
		} else {
			cipher.NewCBCDecrypter(block, iv).CryptBlocks(head, head)
		}
	}
	if len(tail) > 0 {
		// Per §4.4, the trailing partial block is XORed against
		// AES-ECB(key, iv) using the event's own IV, not chained CBC
		// feedback, so length is preserved without padding.
		mask := make([]byte, blockSize)
		block.Encrypt(mask, iv)
		for i := range tail {
			tail[i] ^= mask[i]
		}
	}
	return nil
}

// transformCTR encrypts/decrypts payload with AES-CTR; CTR is its own
// inverse so encrypt and decrypt share one code path (§4.4).
func transformCTR(block cipher.Block, iv []byte, payload []byte) error {
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(payload, payload)
	return nil
}

// Encrypt transforms a clear event into its on-disk encrypted form.
func (c *Context) Encrypt(event []byte, pos uint32) error { return c.Transform(event, pos, true) }

// Decrypt is the inverse of Encrypt.
func (c *Context) Decrypt(event []byte, pos uint32) error { return c.Transform(event, pos, false) }
