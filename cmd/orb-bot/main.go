package main

import "github.com/ducminhle1904/orb-breakout-bot/cmd/orb-bot/cmd"

func main() {
	cmd.Execute()
}
