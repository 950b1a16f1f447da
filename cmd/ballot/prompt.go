package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var stdinReader *bufio.Reader

func readLine(cmd *cobra.Command) (string, error) {
	if stdinReader == nil {
		stdinReader = bufio.NewReader(cmd.InOrStdin())
	}
	line, err := stdinReader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func promptLine(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", label)
	return readLine(cmd)
}

// promptSecret hides input on a terminal and reads a plain line otherwise,
// so secrets can be piped in scripts.
func promptSecret(cmd *cobra.Command, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if cmd.InOrStdin() != os.Stdin || !term.IsTerminal(fd) {
		return readLine(cmd)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", err
	}
	return string(b), nil
}
