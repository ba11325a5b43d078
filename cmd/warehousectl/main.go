package main

import "github.com/ledgerops/warehouse/cmd"

func main() {
	cmd.Execute()
}
