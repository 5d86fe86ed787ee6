// Command offsetkv starts the REPL front end for a single data file.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/leengari/offsetkv/internal/database"
	"github.com/leengari/offsetkv/internal/obslog"
	"github.com/leengari/offsetkv/internal/repl"
)

func main() {
	dataFile := flag.String("file", "offsetkv.db", "path to the data file")
	seqEndpoint := flag.String("seq", "", "Seq server endpoint for structured logging (optional)")
	flag.Parse()

	logger, closeLogger := obslog.Setup(*seqEndpoint)
	defer closeLogger()

	db, err := database.Open(*dataFile, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "offsetkv: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("error closing database", "error", err)
		}
	}()

	r := repl.New(db, logger, os.Stdin, os.Stdout)
	if err := r.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "offsetkv: %v\n", err)
		os.Exit(1)
	}
}
