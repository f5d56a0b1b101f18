package main

import "github.com/ppiankov/pulsewatch/internal/cli"

func main() {
	cli.Execute()
}
