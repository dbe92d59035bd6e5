// The main package for the deadline-crawler executable.
package main

import "github.com/admitkit/deadline-crawler/cmd"

func main() {
	cmd.Execute()
}
