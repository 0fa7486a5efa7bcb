// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Command cask is the caskdb command line client.
//
//	cask [-addr host:port] get KEY
//	cask [-addr host:port] set KEY VALUE
//	cask [-addr host:port] rm KEY
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/dreamsxin/caskdb/client"
	"github.com/dreamsxin/caskdb/types"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4000", "server address")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	c := client.New(*addr)

	switch args[0] {
	case "get":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		v, ok, err := c.Get(args[1])
		if err != nil {
			fatal(err)
		}
		if !ok {
			fmt.Println("Key not found")
			return
		}
		fmt.Println(v)
	case "set":
		if len(args) != 3 {
			usage()
			os.Exit(2)
		}
		if err := c.Set(args[1], args[2]); err != nil {
			fatal(err)
		}
	case "rm":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		if err := c.Remove(args[1]); err != nil {
			if errors.Is(err, types.ErrKeyNotFound) {
				fmt.Fprintln(os.Stderr, "Key not found")
				os.Exit(1)
			}
			fatal(err)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-addr host:port] get KEY | set KEY VALUE | rm KEY\n", os.Args[0])
	flag.PrintDefaults()
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
