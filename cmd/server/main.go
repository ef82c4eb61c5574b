package main

import (
	"context"
	"log"

	"github.com/devoll/rhga-schedule-bot/internal/commands"
)

func main() {
	if err := commands.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}
