package main

import "streak-backend/cmd"

func main() {
	cmd.Run()
}
