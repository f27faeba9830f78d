package main

import "github.com/sajang-ai/backend/cmd/dbctl/commands"

func main() {
	commands.Execute()
}
