package main

import "github.com/louiscrc/trakt-to-letterboxd/cmd"

func main() {
	cmd.Execute()
}
