package main

import "github.com/frahmantamala/wallet-settlement/cmd"

func main() {
	cmd.Execute()
}
