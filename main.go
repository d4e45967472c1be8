package main

import "Tunehub/cmd"

func main() {
	cmd.Execute()
}
