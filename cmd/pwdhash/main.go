package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/2beens/bulletinboard/internal/config"
	"github.com/2beens/bulletinboard/pkg"

	log "github.com/sirupsen/logrus"
)

// prints the bcrypt hash to put into BULLETINS_ADMIN_PASSWORD_HASH
func main() {
	password := flag.String("password", "", "admin password; read from stdin when empty")
	flag.Parse()

	pwd := *password
	if pwd == "" {
		fmt.Fprint(os.Stderr, "password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("read password: %s", err)
		}
		pwd = strings.TrimRight(line, "\r\n")
	}
	if pwd == "" {
		log.Fatalln("empty password")
	}

	hash, err := pkg.HashPassword(pwd)
	if err != nil {
		log.Fatalf("hash password: %s", err)
	}

	fmt.Fprintf(os.Stderr, "set %s to:\n", config.EnvAdminPasswordHash)
	fmt.Println(hash)
}
