package main

import "github.com/oshokin/installer-updater/cmd/installer-updater/cmd"

func main() {
	cmd.Execute()
}
