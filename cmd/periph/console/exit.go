package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Exit builds a cli exit error. urfave/cli prints the message and exits with code.
func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}
