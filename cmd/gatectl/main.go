package main

import (
	"os"

	"github.com/dmitrijs2005/gophgate/internal/gatectl"
)

func main() {
	os.Exit(gatectl.NewApp(os.Stdin, os.Stdout, os.Stderr).Run(os.Args[1:]))
}
