package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultSignatureTolerance — допустимый возраст подписи вебхука.
const DefaultSignatureTolerance = 5 * time.Minute

// VerifySignature проверяет подпись вебхука формата "t=<unix>,v1=<hex hmac>".
// HMAC-SHA256 считается от строки "<t>.<payload>" с секретом вебхука.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return fmt.Errorf("payment: отсутствует заголовок подписи")
	}

	var timestamp int64
	var signature string

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("payment: некорректная метка времени подписи")
			}
			timestamp = parsed
		case "v1":
			signature = value
		}
	}

	if timestamp == 0 || signature == "" {
		return fmt.Errorf("payment: подпись имеет некорректный формат")
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > tolerance || age < -tolerance {
		return fmt.Errorf("payment: метка времени подписи вне допустимого окна")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("payment: подпись не совпадает")
	}

	return nil
}

// SignPayload формирует заголовок подписи. Используется в тестах и
// локальной эмуляции процессора.
func SignPayload(payload []byte, secret string, now time.Time) string {
	timestamp := strconv.FormatInt(now.Unix(), 10)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)

	return "t=" + timestamp + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}
