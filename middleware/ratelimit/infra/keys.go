package infra

import (
	"strings"
	"unicode"
)

const maxKeyLength = 250

// sanitizeKey remove caracteres de controle e limita o tamanho da chave;
// o bucket vem de header/token controlado pelo cliente.
func sanitizeKey(key string) string {
	key = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(key))
	if len(key) > maxKeyLength {
		key = key[:maxKeyLength]
	}
	if key == "" {
		return "unknown"
	}
	return key
}
