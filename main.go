package main

import "github.com/NamanBalaji/chunkdl/cmd"

func main() {
	cmd.Execute()
}
