package main

import "github.com/camden-git/entomobackend/cmd"

func main() {
	cmd.Execute()
}
