package main

import "github.com/jonwraymond/repguard/cmd/repguard/cmd"

func main() {
	cmd.Execute()
}
