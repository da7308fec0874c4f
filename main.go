package main

import "github.com/kozaktomas/campus-attendance/cmd"

func main() {
	cmd.Execute()
}
