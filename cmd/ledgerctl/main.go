package main

import "github.com/cesa-network/cesavote/cmd/ledgerctl/cmd"

func main() {
	cmd.Execute()
}
