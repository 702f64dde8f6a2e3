/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/filehaven/filehaven/cmd/fhdeliverd/cmd"

func main() {
	cmd.Execute()
}
