package main

import "tinychat/cli"

func main() {
	cli.Execute()
}
