package main

import "github.com/KaramelBytes/savloom-cli/cmd"

func main() {
	cmd.Execute()
}
