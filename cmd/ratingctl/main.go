// Command ratingctl validates norm files and evaluates datapoint files
// against them without a running server.
package main

import "os"

var exitFunc = os.Exit

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitFunc(1)
	}
}
