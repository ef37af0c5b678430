// Package main is the terminal client for Smart Bookmarks.
package main

import "github.com/sakif/smart-bookmarks/cmd/bookmarks/commands"

func main() {
	commands.Execute()
}
