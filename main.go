package main

import "github.com/ValentinKolb/dDoc/cmd"

func main() {
	cmd.Execute()
}
