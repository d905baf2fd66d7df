package main

import "currex/internal/cli"

func main() {
	cli.Execute()
}
