package theme

import (
	"os"
	"strings"
)

// SymbolSet holds the glyphs the TUI uses, so a whole set can be swapped
// for ASCII on terminals without Unicode.
type SymbolSet struct {
	Success  string
	Error    string
	Warning  string
	Handoff  string
	Bullet   string
	Ellipsis string
	User     string
}

var unicodeSymbols = SymbolSet{
	Success:  "✓",
	Error:    "✗",
	Warning:  "⚠",
	Handoff:  "↪",
	Bullet:   "•",
	Ellipsis: "…",
	User:     "You",
}

var asciiSymbols = SymbolSet{
	Success:  "[OK]",
	Error:    "[ERR]",
	Warning:  "[!]",
	Handoff:  "->",
	Bullet:   "*",
	Ellipsis: "...",
	User:     "You",
}

var (
	SymbolSuccess  = unicodeSymbols.Success
	SymbolError    = unicodeSymbols.Error
	SymbolWarning  = unicodeSymbols.Warning
	SymbolHandoff  = unicodeSymbols.Handoff
	SymbolBullet   = unicodeSymbols.Bullet
	SymbolEllipsis = unicodeSymbols.Ellipsis
	SymbolUser     = unicodeSymbols.User
)

// DetectUnicodeSupport reports whether the terminal likely renders Unicode.
// RELAYAI_ASCII_SYMBOLS=1 forces ASCII.
func DetectUnicodeSupport() bool {
	if v := os.Getenv("RELAYAI_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}
	// Only a POSIX locale with no UTF-8 hint is treated as ASCII.
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		switch val := strings.ToLower(os.Getenv(key)); {
		case strings.Contains(val, "utf-8"), strings.Contains(val, "utf8"):
			return true
		case val == "c", val == "posix":
			return false
		}
	}
	return true
}

// InitSymbols sets the Symbol* variables from the detected terminal support.
func InitSymbols() {
	set := unicodeSymbols
	if !DetectUnicodeSupport() {
		set = asciiSymbols
	}
	SymbolSuccess = set.Success
	SymbolError = set.Error
	SymbolWarning = set.Warning
	SymbolHandoff = set.Handoff
	SymbolBullet = set.Bullet
	SymbolEllipsis = set.Ellipsis
	SymbolUser = set.User
}

func init() {
	InitSymbols()
}
