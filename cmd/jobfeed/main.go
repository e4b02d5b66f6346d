package main

import "github.com/bitechdev/JobFeed/cmd/jobfeed/cmd"

func main() {
	cmd.Execute()
}
