package main

import "httpbench/cmd"

func main() {
	cmd.Execute()
}
