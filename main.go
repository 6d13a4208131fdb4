package main

import "github.com/kozaktomas/smart-library/cmd"

func main() {
	cmd.Execute()
}
