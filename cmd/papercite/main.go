// Package main is the entry point for the papercite service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/papercite/papercite/internal/papercite"
)

func main() {
	papercite.NewApp().Run()
}
