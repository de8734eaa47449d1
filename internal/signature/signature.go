// Package signature подписывает и проверяет запросы к API по EIP-191 (personal_sign).
package signature

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Заголовки подписанного запроса.
const (
	HeaderAddress   = "X-Crowdsale-Address"
	HeaderTimestamp = "X-Crowdsale-Timestamp"
	HeaderNonce     = "X-Crowdsale-Nonce"
	HeaderSignature = "X-Crowdsale-Signature"
)

// ErrMalformed возвращается для подписи неверного формата.
var ErrMalformed = errors.New("malformed signature")

// Message собирает подписываемое сообщение запроса. Nonce делает подписи
// одинаковых запросов различными.
func Message(method, path string, timestamp int64, nonce string, body []byte) []byte {
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(path)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(timestamp, 10))
	b.WriteByte('\n')
	b.WriteString(nonce)
	b.WriteByte('\n')
	b.Write(body)
	return []byte(b.String())
}

// NewNonce возвращает случайный nonce для очередного запроса.
func NewNonce() string {
	return uuid.NewString()
}

// ValidNonce сообщает, имеет ли nonce формат UUID.
func ValidNonce(nonce string) bool {
	return len(nonce) == 36 && uuid.Validate(nonce) == nil
}

// Sign подписывает сообщение и возвращает подпись в hex с префиксом 0x, V равен 27 или 28.
func Sign(key *ecdsa.PrivateKey, message []byte) (string, error) {
	sig, err := crypto.Sign(hash(message), key)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// Recover восстанавливает адрес подписавшего. Допускаются V 0/1 и 27/28.
func Recover(message []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrMalformed
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(hash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// ParseKey разбирает закрытый ключ в hex, префикс 0x необязателен.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func hash(message []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	return crypto.Keccak256([]byte(prefix), message)
}
