package main

import (
	"os"

	"github.com/middlebury/dynamic-add-users/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
