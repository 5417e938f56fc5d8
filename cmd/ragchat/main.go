package main

import (
	"os"

	"ragchat/cmd/ragchat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
