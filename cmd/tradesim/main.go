// Command tradesim streams a venue's L2 order book and prints a live cost
// estimate for a hypothetical order on every update.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ce *configError
		if !errors.As(err, &ce) && !errors.Is(err, domain.ErrTransport) {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		}
		os.Exit(1)
	}
}
