package main

import "github.com/nextlevelbuilder/goaide/cmd"

func main() {
	cmd.Execute()
}
