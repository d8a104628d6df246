package main

import "chainless-core/cmd/wallet-cli/cmd"

func main() {
	cmd.Execute()
}
