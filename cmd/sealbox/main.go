// Package main implements the command line front end of the vault.
//
//	sealbox --secret XX upload --owner bob --file report.pdf --policy BCS,BCY
//	sealbox --secret XX access --user carol --attrs BCY --owner bob --out report.pdf
//	sealbox revoke --owner bob --user eve
//	sealbox audit
package main

import (
	"fmt"
	"os"
)

func main() {
	app := makeApp()

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
