/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "botframe/cmd"

func main() {
	cmd.Execute()
}
