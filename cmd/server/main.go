package main

import (
	"github.com/restboard/restboard/internal/app"
	"github.com/restboard/restboard/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
