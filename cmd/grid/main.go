package main

import "github.com/ValentinKolb/gridRPC/cmd"

func main() {
	cmd.Execute()
}
