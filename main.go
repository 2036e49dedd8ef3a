package main

import "github.com/chen-001/gallery-app-clean/cmd"

func main() {
	cmd.Execute()
}
