package main

import (
	"github.com/Cray-HPE/sat-sub000/internal/server"
)

func main() {
	server.Run()
}
