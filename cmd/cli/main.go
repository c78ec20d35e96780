package main

import (
	"fmt"
	"os"

	"github.com/Guardefi/landing1.2-sub002/cmd/cli/auth"
	"github.com/Guardefi/landing1.2-sub002/cmd/cli/blocks"
	"github.com/Guardefi/landing1.2-sub002/cmd/cli/events"
	"github.com/Guardefi/landing1.2-sub002/cmd/cli/root"
)

func main() {
	rootCmd := root.GetRoot()
	auth.InitAuth(rootCmd)
	events.InitEvents(rootCmd)
	blocks.InitBlocks(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
