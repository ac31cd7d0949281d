package main

import "github.com/mouse-blink/storyteller/cmd"

func main() {
	cmd.Execute()
}
