package main

import (
	"log"

	"github.com/HMasataka/huddle/cmd/client/handler"
	"github.com/jessevdk/go-flags"
)

func main() {
	parser := flags.NewParser(nil, flags.Default)
	parser.AddCommand("join", "Join a room and print its events", "", handler.NewJoinCommand())
	parser.AddCommand("caps", "Fetch the router RTP capabilities of a room", "", handler.NewCapabilitiesCommand())

	if _, err := parser.Parse(); err != nil {
		log.Fatal(err)
	}
}
