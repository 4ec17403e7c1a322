package main

import (
	"satsguard/internal/cli"
)

func main() {
	cli.Execute()
}
