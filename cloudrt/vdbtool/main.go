// Command vdbtool generates and inspects .cvdb volume files.
//
//	vdbtool gen -o cloud.cvdb [-size 64] [-seed 1] [-float32] [-zlib]
//	vdbtool info cloud.cvdb
//	vdbtool slice [-z 32] [-scale 4] cloud.cvdb out.png
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "gen":
		err = runGen(os.Args[2:], os.Stdout)
	case "info":
		err = runInfo(os.Args[2:], os.Stdout)
	case "slice":
		err = runSlice(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "vdbtool %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: vdbtool gen|info|slice [flags] ...")
}
