package main

import (
	cmd "github.com/sdstation/middleware/cmd/sdstation"
)

func main() {
	cmd.Execute()
}
