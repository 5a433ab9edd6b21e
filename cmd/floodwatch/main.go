package main

import "flood-alerts/internal/cli"

func main() {
	cli.Execute()
}
