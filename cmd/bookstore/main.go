// Command bookstore serves a catalog of books, authors and reviews as a
// hypermedia API.
package main

import (
	"os"

	"github.com/conduit-lang/hyperapi/internal/cli/commands"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	commands.Version = Version
	commands.GitCommit = GitCommit
	commands.BuildDate = BuildDate

	def, err := definition()
	if err != nil {
		os.Stderr.WriteString("bookstore: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := commands.Execute(def); err != nil {
		os.Exit(1)
	}
}
