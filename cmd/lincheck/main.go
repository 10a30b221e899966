// Command lincheck is a thin, stdlib-flag-based reproduce/replay utility. It
// does not know any user's SequentialSpecification (that only exists inside
// a user's own test binary, wired through the root lincheck package's
// Config); what it can do standalone is decode and validate a
// reproduce.Settings token, and encode a seed into one for pasting into a
// bug report.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/concurrit/lincheck/reproduce"
)

func main() {
	reproduceFlag := flag.String("reproduce", "", "decode a reproduce settings token and print the seed it carries")
	encodeFlag := flag.Uint64("encode-seed", 0, "encode the given seed into a reproduce settings token")
	flag.Parse()

	switch {
	case *reproduceFlag != "":
		settings, err := reproduce.Decode(*reproduceFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, "lincheck:", err)
			os.Exit(1)
		}
		fmt.Printf("seed: %d\n", settings.Seed)

	case flag.NFlag() > 0:
		token := reproduce.Settings{Seed: *encodeFlag}.Encode()
		fmt.Println(token)

	default:
		flag.Usage()
		os.Exit(2)
	}
}
