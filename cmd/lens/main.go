// Package main is the entry point for the lens service.
package main

import "github.com/quantum-lens/lens/internal/cli"

func main() {
	cli.Execute()
}
