package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindPhoneFirstMatchWins(t *testing.T) {
	text := "тел +998901234567 ёки 79001234567"
	assert.Equal(t, "+998901234567", findPhone(text, phonePattern))
}

func TestFindPhoneMinimumDigits(t *testing.T) {
	// eight digits is below the 9-digit floor of the section path
	assert.Empty(t, findPhone("id 12345678", phonePattern))
	// but the legacy path accepts it
	assert.Equal(t, "12345678", findPhone("id 12345678", legacyPhonePattern))
}

func TestFindPhoneNone(t *testing.T) {
	assert.Empty(t, findPhone("no digits here", phonePattern))
}

func TestTruncateRuneBoundary(t *testing.T) {
	// cuts at character boundaries, not bytes
	s := "ТашкентТашкентТашкент" // 21 Cyrillic runes, 42 bytes
	got := truncate(s, 10)
	assert.Equal(t, "ТашкентТаш", got)
	assert.Len(t, []rune(got), 10)
}

func TestTruncateShortStringUntouched(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 50))
}
