package main

import "github.com/harborline/quotebuilder/cmd"

func main() {
	cmd.Execute()
}
