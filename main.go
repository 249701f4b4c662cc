package main

import "github.com/acc2soldier2-cmd/Solar/cmd"

func main() {
	cmd.Execute()
}
