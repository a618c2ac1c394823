package main

import "github.com/oshokin/pyfreeze/cmd/pyfreeze/cmd"

func main() {
	cmd.Execute()
}
