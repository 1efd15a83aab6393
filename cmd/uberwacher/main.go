package main

import "github.com/oshokin/uberwacher/cmd/uberwacher/cmd"

func main() {
	cmd.Execute()
}
