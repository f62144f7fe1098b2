package main

import "github.com/dhcgn/mbox-inline-decode/cmd"

func main() {
	cmd.Execute()
}
