package main

import "docqa/client/docqa-cli/cmd"

func main() {
	cmd.Execute()
}
