package main

import (
	"os"

	"github.com/emrgen/manuscript/internal/server"
)

func main() {
	httpPort := os.Getenv("MANUSCRIPT_HTTP_PORT")
	if httpPort == "" {
		httpPort = "4100"
	}

	err := server.Start(httpPort)
	if err != nil {
		return
	}
}
