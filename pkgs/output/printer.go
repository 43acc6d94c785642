package output

import (
	"fmt"
	"io"
)

type Printer interface {
	Printf(format string, a ...any) (n int, err error)
}

type ConsolePrinter struct{}

func (c ConsolePrinter) Printf(format string, a ...any) (n int, err error) {
	return fmt.Printf(format, a...)
}

// WriterPrinter adapts any io.Writer (a file, a buffer, a cobra command's
// own Out stream) to Printer.
type WriterPrinter struct {
	W io.Writer
}

func (w WriterPrinter) Printf(format string, a ...any) (n int, err error) {
	return fmt.Fprintf(w.W, format, a...)
}
