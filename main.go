package main

import "github.com/snowbind/snowbind/cmd"

func main() {
	cmd.Execute()
}
