package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/crm-assist/pkg/mockgemini"
)

func main() {
	addr := defaultString("MOCK_GEMINI_ADDR", ":8090")

	fs := flag.NewFlagSet("mock-gemini", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address (also supports env: MOCK_GEMINI_ADDR)")
	_ = fs.Parse(os.Args[1:])

	srv := mockgemini.New()

	_, _ = fmt.Fprintf(os.Stdout, "mock-gemini listening on %s (set GEMINI_BASE_URL=http://localhost%s)\n", addr, addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
