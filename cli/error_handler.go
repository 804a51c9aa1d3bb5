package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/grovetools/cowork/errors"
)

// ErrorHandler turns command errors into user-facing messages.
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates an ErrorHandler writing to stderr.
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints a message for err based on its error code and returns err.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(h.Out, "%s %v\n", errorStyle.Render("Error:"), err)
		fmt.Fprintln(h.Out, "Run 'cowork config show' to see where configuration is read from.")

	case errors.ErrCodeConfigInvalid:
		fmt.Fprintf(h.Out, "%s %v\n", errorStyle.Render("Invalid configuration:"), err)
		fmt.Fprintln(h.Out, "Run 'cowork config validate' for details.")

	case errors.ErrCodeSessionNotFound:
		fmt.Fprintf(h.Out, "%s %v\n", errorStyle.Render("Error:"), err)
		fmt.Fprintln(h.Out, "Run 'cowork sessions' to list running sessions.")

	case errors.ErrCodeForbidden, errors.ErrCodeUnauthorized:
		fmt.Fprintf(h.Out, "%s %v\n", errorStyle.Render("Denied:"), err)

	default:
		fmt.Fprintf(h.Out, "%s %v\n", errorStyle.Render("Error:"), err)
	}

	if h.Verbose {
		if coworkErr, ok := errors.As(err); ok {
			fmt.Fprintf(h.Out, "\nError details:\n%s\n", coworkErr.ToJSON())
		}
	}
	return err
}
