package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/Agrid-Dev/airtank/cmd/app"
)

func main() {
	if err := app.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
