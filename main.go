package main

import "campanel/cmd"

func main() {
	cmd.Execute()
}
