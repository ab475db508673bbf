package main

import (
	"github.com/vietddude/analyzer/internal/cli"
)

func main() {
	cli.Execute()
}
