package main

import (
	"fmt"
	"os"
)

func main() {
	clCmd.AddCommand(initCmd)
	clCmd.AddCommand(scanCmd)
	clCmd.AddCommand(signCmd)
	clCmd.AddCommand(nonceCmd)
	clCmd.AddCommand(versionCmd)
	if err := clCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
