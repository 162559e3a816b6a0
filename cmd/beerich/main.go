// Command beerich runs the BeeRich HTTP and gRPC servers.
package main

import (
	"log"

	"github.com/patric-chuzhbe/beerich/internal/app"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	theApp, err := app.New()
	if err != nil {
		return err
	}
	defer theApp.Close()

	return theApp.Run()
}
