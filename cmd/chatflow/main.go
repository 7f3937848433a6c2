// Command chatflow serves and inspects conversational agent graphs.
package main

import (
	// TIMEZONE must resolve in minimal containers without zoneinfo.
	_ "time/tzdata"
)

func main() {
	Execute()
}
