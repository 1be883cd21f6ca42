package main

import "github.com/frahmantamala/expense-approvals/cmd"

func main() {
	cmd.Execute()
}
