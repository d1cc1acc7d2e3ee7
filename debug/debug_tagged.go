//go:build debug

package debug

import "fmt"

func init() {
	fmt.Println("WARNING -- DEBUG FLAG IS ON")
}

// Debug is true only when built with -tags debug.
const Debug = true

// Assert panics if condition is false.
func Assert(condition bool, message ...string) {
	if !condition {
		if len(message) > 0 {
			panic(message[0])
		}
		panic("assertion failed")
	}
}
