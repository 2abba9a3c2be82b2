package main

import "github.com/ppiankov/interpose/internal/cli"

func main() {
	cli.Execute()
}
