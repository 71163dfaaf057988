// Command confcheck validates a judge config file and prints a short
// summary. Contest operators run it before restarting the server so that a
// typo in a problem or language block never takes the judge down mid-round.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fairyhunter13/oj-server/internal/config"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to the judge config file (json or yaml)")
	flag.StringVar(&configPath, "c", "", "shorthand for -config")
	flag.Parse()

	if configPath == "" && flag.NArg() > 0 {
		configPath = flag.Arg(0)
	}
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: confcheck -c <config file>")
		os.Exit(2)
	}

	jc, err := config.LoadJudgeConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "confcheck: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s: ok\n", configPath)
	fmt.Printf("  listen    %s\n", jc.Addr())
	fmt.Printf("  problems  %d\n", len(jc.Problems))
	for _, p := range jc.Problems {
		fmt.Printf("    #%-6d %-24s %d cases, %g points\n", p.ID, p.Name, len(p.Cases), p.TotalScore())
	}
	fmt.Printf("  languages %d\n", len(jc.Languages))
	for _, l := range jc.Languages {
		fmt.Printf("    %-12s %s\n", l.Name, l.FileName)
	}
}
