package display

import (
	"fmt"
	"io"

	"github.com/backmassage/gdcbatch/internal/term"
)

// PrintBanner prints the ASCII art banner and version; uses Magenta if
// colors are enabled.
func PrintBanner(w io.Writer, version string) {
	fmt.Fprint(w, term.Magenta)
	fmt.Fprint(w, `           _      _           _       _
  __ _  __| | ___| |__   __ _| |_ ___| |__
 / _`+"`"+` |/ _`+"`"+` |/ __| '_ \ / _`+"`"+` | __/ __| '_ \
| (_| | (_| | (__| |_) | (_| | || (__| | | |
 \__, |\__,_|\___|_.__/ \__,_|\__\___|_| |_|
 |___/`)
	fmt.Fprintf(w, "  %s%s\n\n", version, term.NC)
}
