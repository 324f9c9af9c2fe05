// Package main is the entry point for the detach CLI
package main

import (
	"github.com/kokjohn0824/detach/internal/cli"
)

func main() {
	cli.Execute()
}
