package main

import "daycal/internal/cli"

func main() {
	cli.Execute()
}
