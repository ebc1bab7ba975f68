package main

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
)

type commandLine struct {
	Help       bool
	EnvFiles   []string
	Validation bool
}

func parseCommandLine(args []string) (commandLine, error) {
	var cl commandLine

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "--help", "-h":
			cl.Help = true
		case "--validation":
			cl.Validation = true
		case "--env":
			if i+1 >= len(args) {
				return cl, errors.New("--env needs a file name")
			}
			i++
			cl.EnvFiles = append(cl.EnvFiles, args[i])
		default:
			return cl, errors.Newf("unrecognized option: %s", arg)
		}
	}

	return cl, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "\nOptions")
	fmt.Fprintln(w, "\t--env <file>")
	fmt.Fprintln(w, "\t\tLoad SQUARE_* settings from a .env file. May be repeated.")
	fmt.Fprintln(w, "\t--validation")
	fmt.Fprintln(w, "\t\tEnable the Khronos validation layer")
	fmt.Fprintln(w, "\t--help, -h")
	fmt.Fprintln(w, "\t\tShow this list")
}
