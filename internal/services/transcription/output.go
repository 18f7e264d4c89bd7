package transcription

import (
	"path/filepath"
	"strings"
)

// Variant selects the output naming convention of a front-end.
type Variant int

const (
	// VariantWeb names downloads <base>_transcription.txt.
	VariantWeb Variant = iota
	// VariantDesktop saves <base>.txt.
	VariantDesktop
)

// OutputFileName derives the text file name from the uploaded audio name.
func OutputFileName(original string, v Variant) string {
	base := filepath.Base(original)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "audio"
	}
	if v == VariantWeb {
		return base + "_transcription.txt"
	}
	return base + ".txt"
}

// DesktopOutputPath places the transcript next to the input audio file.
func DesktopOutputPath(audioPath string) string {
	return filepath.Join(filepath.Dir(audioPath), OutputFileName(audioPath, VariantDesktop))
}
