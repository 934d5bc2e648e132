package main

import "github.com/stackhq/stack-api/internal/cli"

func main() {
	cli.Execute()
}
