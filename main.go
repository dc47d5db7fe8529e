package main

import (
	"os"

	"github.com/crypto-ninja/mcp-server-for-Github-sub000/cmd/ghmcp"
)

func main() {
	if err := ghmcp.Execute(); err != nil {
		os.Exit(1)
	}
}
