package main

import (
	"github.com/corray333/backend-labs/ordercqrs/internal/app"
	"github.com/corray333/backend-labs/ordercqrs/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
