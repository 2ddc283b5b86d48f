package main

import "github.com/vietddude/governor/internal/cli"

func main() {
	cli.Execute()
}
