package main

import "github.com/cbout22/squaresync/internal/cli"

func main() {
	cli.Execute()
}
