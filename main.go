package main

import "github.com/kozaktomas/photo-batcher/cmd"

func main() {
	cmd.Execute()
}
