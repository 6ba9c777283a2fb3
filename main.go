package main

import "github.com/ValentinKolb/dMX/cmd"

func main() {
	cmd.Execute()
}
