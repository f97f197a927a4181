// Command osim simulates processes sharing a small paged memory.
package main

import (
	"github.com/sarchlab/osim/osim/cmd"
	"github.com/tebeka/atexit"
)

func main() {
	code := cmd.Execute()
	atexit.Exit(code)
}
