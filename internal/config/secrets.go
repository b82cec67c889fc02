package config

import (
	"bufio"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	encryptedConfigFile = ".config.enc"
	encryptionKeyFile   = ".encryption_key"

	opensslMagic     = "Salted__"
	opensslSaltLen   = 8
	pbkdf2Iterations = 10000
	encTokenKey      = "ENCRYPTED_TELEGRAM_BOT_TOKEN"
	encChatIDKey     = "ENCRYPTED_TELEGRAM_CHAT_ID"
)

// ErrBadCiphertext is returned when an encrypted value cannot be decoded
// or decrypted with the configured passphrase.
var ErrBadCiphertext = errors.New("cannot decrypt credential")

// loadEncryptedCredentials fills in the bot token and chat ID from the
// encrypted credential file if one exists. Missing files are not an error;
// Validate catches absent credentials later.
func (c *Config) loadEncryptedCredentials(dir string) error {
	encPath := filepath.Join(dir, encryptedConfigFile)
	values, err := parseEncryptedFile(encPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read encrypted config: %w", err)
	}

	keyData, err := os.ReadFile(filepath.Join(dir, encryptionKeyFile))
	if err != nil {
		return fmt.Errorf("failed to read encryption key: %w", err)
	}
	passphrase := strings.TrimSpace(string(keyData))

	if c.TelegramBotToken == "" {
		if enc, ok := values[encTokenKey]; ok {
			token, err := DecryptValue(enc, passphrase)
			if err != nil {
				return fmt.Errorf("bot token: %w", err)
			}
			c.TelegramBotToken = token
		}
	}

	if c.TelegramChatID == 0 {
		if enc, ok := values[encChatIDKey]; ok {
			raw, err := DecryptValue(enc, passphrase)
			if err != nil {
				return fmt.Errorf("chat id: %w", err)
			}
			chatID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				return fmt.Errorf("chat id is not numeric: %w", err)
			}
			c.TelegramChatID = chatID
		}
	}

	return nil
}

// parseEncryptedFile reads KEY="value" lines. Values may continue across
// lines until the closing quote, since openssl wraps base64 output.
func parseEncryptedFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)

	var key string
	var value strings.Builder
	inValue := false

	for scanner.Scan() {
		line := scanner.Text()

		if inValue {
			if idx := strings.Index(line, `"`); idx >= 0 {
				value.WriteString(line[:idx])
				values[key] = value.String()
				inValue = false
			} else {
				value.WriteString(strings.TrimSpace(line))
			}
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		eq := strings.Index(line, "=")
		if eq < 0 {
			continue
		}
		key = strings.TrimSpace(line[:eq])
		rest := strings.TrimSpace(line[eq+1:])
		if !strings.HasPrefix(rest, `"`) {
			values[key] = rest
			continue
		}

		rest = rest[1:]
		if idx := strings.Index(rest, `"`); idx >= 0 {
			values[key] = rest[:idx]
		} else {
			value.Reset()
			value.WriteString(rest)
			inValue = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return values, nil
}

// DecryptValue decrypts a base64 value produced by
// `openssl enc -aes-256-cbc -pbkdf2 -base64 -pass pass:<passphrase>`.
func DecryptValue(encoded, passphrase string) (string, error) {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, encoded)

	raw, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadCiphertext, err)
	}

	if len(raw) < len(opensslMagic)+opensslSaltLen || string(raw[:len(opensslMagic)]) != opensslMagic {
		return "", fmt.Errorf("%w: missing salt header", ErrBadCiphertext)
	}
	salt := raw[len(opensslMagic) : len(opensslMagic)+opensslSaltLen]
	ciphertext := raw[len(opensslMagic)+opensslSaltLen:]

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext not block-aligned", ErrBadCiphertext)
	}

	// openssl derives 48 bytes: a 32-byte AES key followed by a 16-byte IV.
	derived := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 48, sha256.New)
	key, iv := derived[:32], derived[32:48]

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = stripPKCS7(plaintext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptValue is the inverse of DecryptValue, producing output compatible
// with the same openssl invocation. The salt must be 8 bytes.
func EncryptValue(plaintext, passphrase string, salt []byte) (string, error) {
	if len(salt) != opensslSaltLen {
		return "", fmt.Errorf("salt must be %d bytes", opensslSaltLen)
	}

	derived := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 48, sha256.New)
	key, iv := derived[:32], derived[32:48]

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	padded := padPKCS7([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	raw := make([]byte, 0, len(opensslMagic)+opensslSaltLen+len(ciphertext))
	raw = append(raw, opensslMagic...)
	raw = append(raw, salt...)
	raw = append(raw, ciphertext...)

	return base64.StdEncoding.EncodeToString(raw), nil
}

func stripPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrBadCiphertext)
	}
	pad := int(data[len(data)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrBadCiphertext)
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("%w: bad padding", ErrBadCiphertext)
		}
	}
	return data[:len(data)-pad], nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}
