package main

import "moorecollect/cmd"

func main() {
	cmd.Execute()
}
