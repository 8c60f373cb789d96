package main

import "github.com/pseudodojo/psdist/cmd"

func main() {
	cmd.Execute()
}
