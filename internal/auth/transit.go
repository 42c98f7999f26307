package auth

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"unicode/utf8"
)

var saltedPrefix = []byte("Salted__")

// TransitDecryptor reverses the client-side AES applied to passwords before
// they leave the browser. The ciphertext is the OpenSSL/CryptoJS passphrase
// form: base64("Salted__" | salt[8] | AES-256-CBC(PKCS#7 plaintext)).
type TransitDecryptor struct {
	passphrase []byte
}

// NewTransitDecryptor creates a decryptor for the shared passphrase
func NewTransitDecryptor(passphrase string) *TransitDecryptor {
	return &TransitDecryptor{passphrase: []byte(passphrase)}
}

// Decrypt returns the plaintext or ErrTransitDecryption. The cause is never
// distinguished: bad encoding, wrong key and empty plaintext look the same.
func (d *TransitDecryptor) Decrypt(ciphertext string) (string, error) {
	if len(d.passphrase) == 0 {
		return "", ErrTransitDecryption
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrTransitDecryption
	}
	if len(raw) < 16 || !bytes.Equal(raw[:8], saltedPrefix) {
		return "", ErrTransitDecryption
	}
	salt, body := raw[8:16], raw[16:]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return "", ErrTransitDecryption
	}

	key, iv := evpBytesToKey(d.passphrase, salt, 32, aes.BlockSize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", ErrTransitDecryption
	}
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	plain, ok := pkcs7Unpad(plain)
	if !ok || len(plain) == 0 || !utf8.Valid(plain) {
		return "", ErrTransitDecryption
	}
	return string(plain), nil
}

// Encrypt produces the same wire form as the browser client. Used by the
// admin CLI and tests.
func (d *TransitDecryptor) Encrypt(plaintext string, salt []byte) (string, error) {
	if len(salt) != 8 {
		return "", ErrTransitDecryption
	}
	key, iv := evpBytesToKey(d.passphrase, salt, 32, aes.BlockSize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	buf := append([]byte(plaintext), bytes.Repeat([]byte{byte(pad)}, pad)...)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(buf, buf)

	out := make([]byte, 0, 16+len(buf))
	out = append(out, saltedPrefix...)
	out = append(out, salt...)
	out = append(out, buf...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// evpBytesToKey is OpenSSL's EVP_BytesToKey with MD5 and one iteration
func evpBytesToKey(pass, salt []byte, keyLen, ivLen int) ([]byte, []byte) {
	var derived, prev []byte
	for len(derived) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write(pass)
		h.Write(salt)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:keyLen], derived[keyLen : keyLen+ivLen]
}

func pkcs7Unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 || len(b)%aes.BlockSize != 0 {
		return nil, false
	}
	pad := int(b[len(b)-1])
	if pad == 0 || pad > aes.BlockSize {
		return nil, false
	}
	for _, c := range b[len(b)-pad:] {
		if int(c) != pad {
			return nil, false
		}
	}
	return b[:len(b)-pad], true
}
