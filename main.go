package main

import "github.com/RogWilco/jacob/cmd"

func main() {
	cmd.Execute()
}
