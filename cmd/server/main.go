package main

import "github.com/JayanthReddyKonda/recovery-ease-frontend/cmd/cli"

// 独立的开发后端入口，等价于 `recoverease devserver`
func main() {
	cli.ExecuteCommand("devserver")
}
