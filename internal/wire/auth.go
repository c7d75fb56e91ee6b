package wire

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
)

// EncryptPassword implements the password-hashing side of the four
// authentication plugins the binlog router needs to register as a slave:
// mysql_native_password, mysql_clear_password, caching_sha2_password and
// sha256_password.
func EncryptPassword(plugin string, conn net.Conn, password, scramble []byte, pubKey *rsa.PublicKey) ([]byte, error) {
	switch plugin {
	case "mysql_native_password":
		if len(password) == 0 {
			return nil, nil
		}
		return xorSHA1(password, scramble), nil
	case "mysql_clear_password":
		return append(append([]byte(nil), password...), 0), nil
	case "caching_sha2_password":
		if len(password) == 0 {
			return nil, nil
		}
		return xorSHA256(password, scramble), nil
	case "sha256_password":
		if len(password) == 0 {
			return []byte{0}, nil
		}
		switch conn.(type) {
		case *tls.Conn:
			return append(append([]byte(nil), password...), 0), nil
		default:
			if pubKey == nil {
				return []byte{1}, nil // request public key
			}
			return EncryptPasswordPubKey(password, scramble, pubKey)
		}
	}
	return nil, fmt.Errorf("wire: unsupported auth plugin %q", plugin)
}

func xorSHA1(password, scramble []byte) []byte {
	h := sha1.New()
	s := func(b []byte) []byte {
		h.Reset()
		h.Write(b)
		return h.Sum(nil)
	}
	x := s(password)
	y := s(append(append([]byte(nil), scramble[:20]...), s(s(password))...))
	for i, b := range y {
		x[i] ^= b
	}
	return x
}

func xorSHA256(password, scramble []byte) []byte {
	h := sha256.New()
	s := func(b []byte) []byte {
		h.Reset()
		h.Write(b)
		return h.Sum(nil)
	}
	x := s(password)
	y := s(append(s(x), scramble[:20]...))
	for i, b := range y {
		x[i] ^= b
	}
	return x
}

// DecodePEM extracts an RSA public key from a PEM-encoded server response.
func DecodePEM(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("wire: no PEM data found in server response")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("wire: server public key is not RSA")
	}
	return rsaPub, nil
}

// EncryptPasswordPubKey implements the RSA-OAEP step of caching_sha2_password
// and sha256_password full authentication.
func EncryptPasswordPubKey(password, seed []byte, pub *rsa.PublicKey) ([]byte, error) {
	seed = seed[:20]
	plain := make([]byte, len(password)+1)
	copy(plain, password)
	for i := range plain {
		plain[i] ^= seed[i%len(seed)]
	}
	return rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, plain, nil)
}
