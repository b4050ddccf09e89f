package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	a := newApp(os.Stdout, os.Stderr)
	err := buildRoot(a).Execute()
	a.Close()
	if err != nil {
		var re *reportedError
		if !errors.As(err, &re) {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
