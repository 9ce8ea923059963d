package main

import "globesort/internal/cli"

func main() {
	cli.Execute()
}
