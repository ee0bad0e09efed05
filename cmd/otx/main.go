// Command otx exports KiCad boards to solid models and ODB++ jobs.
package main

import "github.com/OpenTraceLab/OpenTraceExport/cmd/otx/cmd"

func main() {
	cmd.Execute()
}
