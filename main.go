package main

import "github.com/tomas/secureface/cmd"

func main() {
	cmd.Execute()
}
