// Command sitegatectl is the operator tool for portal sessions: it issues and inspects tokens
// and prints the permission set of a role.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(nil).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sitegatectl:", err)
		os.Exit(1)
	}
}
