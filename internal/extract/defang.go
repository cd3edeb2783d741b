package extract

import "strings"

// Threat reports obfuscate indicators so they cannot be clicked or resolved.
// The replacer reverses the notations seen across common feeds; longer forms
// are listed first so they win at a given position.
var refanger = strings.NewReplacer(
	"hxxps://", "https://",
	"hXXps://", "https://",
	"hxxp://", "http://",
	"hXXp://", "http://",
	"[://]", "://",
	"[.]", ".",
	"(.)", ".",
	"{.}", ".",
	"[dot]", ".",
	"(dot)", ".",
	"[:]", ":",
	"[@]", "@",
	"(@)", "@",
	"[at]", "@",
)

// Refang reverses defanging notation so extraction patterns match the real
// value. Text without defanged markers passes through unchanged.
func Refang(text string) string {
	return refanger.Replace(text)
}
