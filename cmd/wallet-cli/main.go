package main

import "wallet-session/cmd/wallet-cli/cmd"

func main() {
	cmd.Execute()
}
