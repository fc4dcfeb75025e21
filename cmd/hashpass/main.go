package main

import (
	"fmt"
	"os"

	"github.com/planchoque/portal/internal/auth"
	"github.com/planchoque/portal/internal/util"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "uso: hashpass <clave>")
		os.Exit(1)
	}

	if err := util.ValidatePassword(os.Args[1]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	hash, err := auth.Hash(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error de hash: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
}
