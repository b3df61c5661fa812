package main

import (
	"fmt"
	goos "os"
)

func helper() {
	goos.Exit(2)
}

func main() {
	defer fmt.Println("deferred")

	func() {
		goos.Exit(1) // want "avoid using os.Exit in main.main"
	}()

	helper()
	goos.Exit(0) // want "avoid using os.Exit in main.main"
}
