// Command snapbot logs in to social-media accounts and captures screenshots.
package main

import (
	"os"

	"github.com/ibeckermayer/snapbot/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
