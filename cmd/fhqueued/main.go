/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/filehaven/filehaven/cmd/fhqueued/cmd"

func main() {
	cmd.Execute()
}
