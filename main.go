package main

import "github.com/notargets/PAKernel/cmd"

func main() {
	cmd.Execute()
}
