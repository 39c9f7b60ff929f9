package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectUnicodeSupport(t *testing.T) {
	tests := []struct {
		name  string
		ascii string
		lcAll string
		lang  string
		want  bool
	}{
		{"utf8 locale", "", "", "en_US.UTF-8", true},
		{"forced ascii", "1", "", "en_US.UTF-8", false},
		{"forced ascii word", "TRUE", "", "", false},
		{"posix locale", "", "C", "", false},
		{"lc_all wins", "", "en_GB.utf8", "C", true},
		{"unset", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RELAYAI_ASCII_SYMBOLS", tt.ascii)
			t.Setenv("LC_ALL", tt.lcAll)
			t.Setenv("LC_CTYPE", "")
			t.Setenv("LANG", tt.lang)
			assert.Equal(t, tt.want, DetectUnicodeSupport())
		})
	}
}

func TestInitSymbols_ASCII(t *testing.T) {
	t.Setenv("RELAYAI_ASCII_SYMBOLS", "1")
	InitSymbols()
	t.Cleanup(func() {
		t.Setenv("RELAYAI_ASCII_SYMBOLS", "")
		InitSymbols()
	})

	assert.Equal(t, "->", SymbolHandoff)
	assert.Equal(t, "[ERR]", SymbolError)
	assert.Equal(t, "*", SymbolBullet)
}
