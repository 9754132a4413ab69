// Command server runs the calendar sync service and its maintenance commands.
package main

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	Execute()
}
