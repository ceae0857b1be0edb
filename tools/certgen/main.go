// Package main writes a development CA and a server certificate for the
// mock admin backend:
//
//	certs/ca.crt, certs/ca.key          trust with the client -ca flag
//	certs/server.crt, certs/server.key  serve with -tls-cert and -tls-key
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/atinyakov/teaadmin/internal/certgen"
)

func main() {
	dir := flag.String("dir", "certs", "output directory")
	hosts := flag.String("hosts", "localhost,127.0.0.1", "comma separated server names")
	flag.Parse()

	if err := run(*dir, strings.Split(*hosts, ",")); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Certificates generated into %s\n", *dir)
}

func run(dir string, hosts []string) error {
	ca, err := certgen.NewCA("tea-admin dev CA")
	if err != nil {
		return err
	}
	if err := ca.Write(filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key")); err != nil {
		return err
	}

	var names []string
	for _, h := range hosts {
		if h = strings.TrimSpace(h); h != "" {
			names = append(names, h)
		}
	}
	srv, err := certgen.IssueServer(ca, names...)
	if err != nil {
		return err
	}
	return srv.Write(filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key"))
}
