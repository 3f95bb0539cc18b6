package main

import "example.com/notehub/cmd"

func main() {
	cmd.Execute()
}
