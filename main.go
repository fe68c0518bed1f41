package main

import "github.com/kamusis/sloka-search/cmd"

func main() {
	cmd.Execute()
}
