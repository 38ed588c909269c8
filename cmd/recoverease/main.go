package main

import "github.com/JayanthReddyKonda/recovery-ease-frontend/cmd/cli"

func main() {
	cli.Execute()
}
