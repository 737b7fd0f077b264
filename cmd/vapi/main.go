package main

import "vapi/internal/cli"

func main() {
	cli.Execute()
}
